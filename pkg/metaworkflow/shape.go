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

import "sort"

// AnalyzeShape computes the dim-1 Shape of a FILE input value, used to
// drive shard enumeration. files maps a sample index to its ordered list
// of file handles; the result carries only the sample count (Dim1).
//
// Dim-2 and dim-3 shapes are computed from nested values by
// AnalyzeNestedShape and AnalyzeDoublyNestedShape.
func AnalyzeShape(name string, files map[int][]string) (Shape, error) {
	if len(files) == 0 {
		return Shape{}, &ShapeUnsupportedError{Name: name, Reason: "no sample indices present"}
	}
	return Shape{Dim1: len(files)}, nil
}

// AnalyzeNestedShape computes a dim2 Shape from a sample index -> ordered
// list of per-entry file-lists mapping (entries[i] is itself a list whose
// length becomes Dim2[i]).
func AnalyzeNestedShape(name string, entries map[int][][]string) (Shape, error) {
	if len(entries) == 0 {
		return Shape{}, &ShapeUnsupportedError{Name: name, Reason: "no sample indices present"}
	}

	indices := make([]int, 0, len(entries))
	for i := range entries {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	dim2 := make([]int, len(indices))
	for pos, i := range indices {
		dim2[pos] = len(entries[i])
	}

	return Shape{Dim1: len(indices), Dim2: dim2}, nil
}

// AnalyzeDoublyNestedShape computes a dim3 Shape from a sample index ->
// ordered list of ordered sublists mapping.
func AnalyzeDoublyNestedShape(name string, entries map[int][][][]string) (Shape, error) {
	if len(entries) == 0 {
		return Shape{}, &ShapeUnsupportedError{Name: name, Reason: "no sample indices present"}
	}

	indices := make([]int, 0, len(entries))
	for i := range entries {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	dim2 := make([]int, len(indices))
	dim3 := make([][]int, len(indices))
	for pos, i := range indices {
		sublists := entries[i]
		dim2[pos] = len(sublists)
		row := make([]int, len(sublists))
		for j, sub := range sublists {
			row[j] = len(sub)
		}
		dim3[pos] = row
	}

	return Shape{Dim1: len(indices), Dim2: dim2, Dim3: dim3}, nil
}
