// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metaworkflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a shard coordinate: an ordered tuple of dimension indices.
type Coordinate []int

// String renders a Coordinate as its colon-delimited form (e.g. "0:2"), or
// "0" for the zero-dimension coordinate.
func (c Coordinate) String() string {
	if len(c) == 0 {
		return "0"
	}
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ":")
}

// ParseCoordinate parses a colon-delimited coordinate string back into a
// Coordinate. "0" always parses to the single-index coordinate {0}, never
// to the empty (zero-dimension) coordinate; callers that need to
// distinguish the literal dim-0 placeholder from a single dim-1 index "0"
// should track depth separately (the Run Builder always knows dₛ).
func ParseCoordinate(s string) (Coordinate, error) {
	if s == "" {
		return nil, fmt.Errorf("empty shard coordinate")
	}
	parts := strings.Split(s, ":")
	coord := make(Coordinate, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid shard coordinate %q: %w", s, err)
		}
		coord[i] = n
	}
	return coord, nil
}

// EnumerateShards produces the list of coordinate tuples of length depth,
// in lexicographic order, for the Cartesian product defined by shape at
// that depth. depth == 0 yields a single empty coordinate (rendered "0").
func EnumerateShards(shape Shape, depth int) ([]Coordinate, error) {
	switch depth {
	case 0:
		return []Coordinate{{}}, nil
	case 1:
		coords := make([]Coordinate, shape.Dim1)
		for i := 0; i < shape.Dim1; i++ {
			coords[i] = Coordinate{i}
		}
		return coords, nil
	case 2:
		if shape.Dim2 == nil {
			return nil, &ShapeUnsupportedError{Reason: "shape has no dimension-2 structure"}
		}
		var coords []Coordinate
		for i := 0; i < shape.Dim1; i++ {
			for j := 0; j < shape.Dim2[i]; j++ {
				coords = append(coords, Coordinate{i, j})
			}
		}
		return coords, nil
	case 3:
		if shape.Dim3 == nil {
			return nil, &ShapeUnsupportedError{Reason: "shape has no dimension-3 structure"}
		}
		var coords []Coordinate
		for i := 0; i < shape.Dim1; i++ {
			for j := 0; j < shape.Dim2[i]; j++ {
				for k := 0; k < shape.Dim3[i][j]; k++ {
					coords = append(coords, Coordinate{i, j, k})
				}
			}
		}
		return coords, nil
	default:
		return nil, &DimUnsupportedError{Dim: depth}
	}
}

// hasPrefix reports whether coord's first prefixLen elements equal
// prefix's elements (prefix must have length prefixLen).
func hasPrefix(coord Coordinate, prefix Coordinate, prefixLen int) bool {
	if prefixLen == 0 {
		return true
	}
	if len(coord) < prefixLen || len(prefix) < prefixLen {
		return false
	}
	for i := 0; i < prefixLen; i++ {
		if coord[i] != prefix[i] {
			return false
		}
	}
	return true
}

// truncate returns coord's first n elements (or all of it if shorter).
func truncate(coord Coordinate, n int) Coordinate {
	if len(coord) <= n {
		return coord
	}
	return coord[:n]
}
