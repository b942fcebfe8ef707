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

// BuildRun combines the DAG Compiler's ordered step list with a Shape to
// produce the flat, dependency-complete list of ShardRecords for a run.
//
// orderedSteps must already be in dependency order (see Compile/Order);
// shape is the primary FILE input's Shape, shared by every step's scatter
// dimension.
func BuildRun(orderedSteps []*Step, shape Shape) ([]*ShardRecord, error) {
	scatterOf := make(map[string]int, len(orderedSteps))
	coordsOf := make(map[string][]Coordinate, len(orderedSteps))
	var records []*ShardRecord

	for _, step := range orderedSteps {
		deps := sortedDeps(step)

		dS, err := effectiveScatter(step, deps, scatterOf)
		if err != nil {
			return nil, err
		}
		scatterOf[step.Name] = dS

		shardCoords, err := EnumerateShards(shape, dS)
		if err != nil {
			return nil, err
		}
		coordsOf[step.Name] = shardCoords

		for _, s := range shardCoords {
			shardDeps, err := shardDependencies(step, deps, s, dS, scatterOf, shape)
			if err != nil {
				return nil, err
			}
			records = append(records, &ShardRecord{
				StepName:     step.Name,
				ShardCoord:   s.String(),
				Status:       StatusPending,
				Dependencies: shardDeps,
			})
		}
	}

	return records, nil
}

// sortedDeps returns a step's dependency names in lexicographic order, the
// deterministic order the spec's "sorted(S.dependencies)" requires.
func sortedDeps(step *Step) []string {
	deps := make([]string, 0, len(step.Dependencies))
	for d := range step.Dependencies {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

// effectiveScatter determines a step's effective scatter dimension dₛ.
func effectiveScatter(step *Step, sortedDependencies []string, scatterOf map[string]int) (int, error) {
	if step.IsScatter > 0 {
		return step.IsScatter, nil
	}

	// G: non-gathered, scattered predecessors, in sorted order; first
	// one wins.
	for _, pred := range sortedDependencies {
		if _, gathered := step.GatherFrom[pred]; gathered {
			continue
		}
		if p := scatterOf[pred]; p > 0 {
			return p, nil
		}
	}

	// R: gathered predecessors' scatter dimension minus their gather
	// reduction; take the max.
	maxR := -1
	for _, pred := range sortedDependencies {
		k, gathered := step.GatherFrom[pred]
		if !gathered {
			continue
		}
		r := scatterOf[pred] - k
		if r > maxR {
			maxR = r
		}
	}
	if maxR >= 0 {
		return maxR, nil
	}

	return 0, nil
}

// shardDependencies computes the "pred_name:coord" dependency list for one
// shard s of step, given its effective scatter dimension dS.
func shardDependencies(step *Step, sortedDependencies []string, s Coordinate, dS int, scatterOf map[string]int, shape Shape) ([]string, error) {
	var deps []string

	for _, pred := range sortedDependencies {
		p := scatterOf[pred]

		predCoords, err := EnumerateShards(shape, p)
		if err != nil {
			return nil, err
		}

		if k, gathered := step.GatherFrom[pred]; gathered {
			g := p - k
			if dS == 0 || dS > g {
				for _, pc := range predCoords {
					deps = append(deps, pred+":"+pc.String())
				}
				continue
			}
			for _, pc := range predCoords {
				if hasPrefix(pc, s, dS) {
					deps = append(deps, pred+":"+pc.String())
				}
			}
			continue
		}

		// No gather: a single predecessor shard whose coordinate is s's
		// prefix of length min(p, dS) — equivalently, s truncated to
		// the predecessor's own scatter dimension.
		prefixLen := p
		if dS < prefixLen {
			prefixLen = dS
		}
		found := false
		for _, pc := range predCoords {
			if hasPrefix(pc, s, prefixLen) {
				deps = append(deps, pred+":"+pc.String())
				found = true
				break
			}
		}
		if !found && len(predCoords) > 0 {
			deps = append(deps, pred+":"+predCoords[0].String())
		}
	}

	return deps, nil
}
