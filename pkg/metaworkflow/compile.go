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

// Build walks dependencies backward from endSteps to the reachable set of
// steps. Fails with MissingDepError if any referenced step (an end step or
// a transitive predecessor) is absent from the meta-workflow.
func Build(m *MetaWorkflow, endSteps []string) (map[string]*Step, error) {
	reachable := make(map[string]*Step)

	var visit func(name, from string) error
	visit = func(name, from string) error {
		if _, ok := reachable[name]; ok {
			return nil
		}
		step := m.StepByName(name)
		if step == nil {
			return &MissingDepError{Step: from, Dep: name}
		}
		reachable[name] = step
		for dep := range step.Dependencies {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		return nil
	}

	for _, end := range endSteps {
		if err := visit(end, ""); err != nil {
			return nil, err
		}
	}

	return reachable, nil
}

// Order returns the reachable set in topological order: a step appears
// only after every one of its dependencies has appeared. Ties are broken
// by the step's insertion order in the meta-workflow definition (stable).
//
// Fails with MissingDepError if the reachable set contains a cycle (a step
// that can never satisfy its dependencies).
func Order(m *MetaWorkflow, reachable map[string]*Step) ([]*Step, error) {
	// insertion index per step name, for stable tie-breaking.
	index := make(map[string]int, len(m.Steps))
	for i, s := range m.Steps {
		index[s.Name] = i
	}

	ordered := make([]*Step, 0, len(reachable))
	placed := make(map[string]struct{}, len(reachable))

	// Candidates are processed in a stable loop: repeatedly scan the
	// reachable set (in meta-workflow declaration order) for the next
	// step whose dependencies are all placed.
	remaining := make([]*Step, 0, len(reachable))
	for _, s := range m.Steps {
		if _, ok := reachable[s.Name]; ok {
			remaining = append(remaining, s)
		}
	}

	for len(placed) < len(reachable) {
		progressed := false
		for _, s := range remaining {
			if _, done := placed[s.Name]; done {
				continue
			}
			ready := true
			for dep := range s.Dependencies {
				if _, ok := reachable[dep]; !ok {
					continue
				}
				if _, done := placed[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, s)
				placed[s.Name] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			// Every remaining step has an unplaced dependency: a cycle.
			for _, s := range remaining {
				if _, done := placed[s.Name]; !done {
					return nil, &MissingDepError{Step: s.Name, Dep: "(cycle)"}
				}
			}
		}
	}

	return ordered, nil
}

// Compile builds and orders an already-parsed meta-workflow in one call:
// the common entry point used by the Run Builder.
func Compile(m *MetaWorkflow, endSteps []string) ([]*Step, error) {
	reachable, err := Build(m, endSteps)
	if err != nil {
		return nil, err
	}
	return Order(m, reachable)
}
