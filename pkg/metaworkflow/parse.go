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

// RawStep is the wire/document shape a meta-workflow step arrives in
// before parsing: one entry per workflow, with its declared arguments.
type RawStep struct {
	Name    string
	UUID    string
	Outputs []string
	Args    []RawArgument
}

// RawArgument is one argument entry of a RawStep as read from the
// meta-workflow document.
type RawArgument struct {
	Name       string
	SourceStep string
	Scatter    int
	Gather     int
}

// ParseSteps materializes a Step for every RawStep entry, deriving
// IsScatter (the first non-zero argument Scatter wins), GatherFrom (from
// any argument whose SourceStep carries a non-zero Gather), and
// Dependencies (the union of argument SourceSteps).
//
// Fails with SchemaError on a step with an empty name, and
// DuplicateStepError on a name collision.
func ParseSteps(raw []RawStep) ([]*Step, error) {
	seen := make(map[string]struct{}, len(raw))
	steps := make([]*Step, 0, len(raw))

	for _, r := range raw {
		if r.Name == "" {
			return nil, &SchemaError{Reason: "step missing required field \"name\""}
		}
		if _, dup := seen[r.Name]; dup {
			return nil, &DuplicateStepError{Step: r.Name}
		}
		seen[r.Name] = struct{}{}

		step := &Step{
			Name:         r.Name,
			UUID:         r.UUID,
			Outputs:      r.Outputs,
			GatherFrom:   make(map[string]int),
			Dependencies: make(map[string]struct{}),
		}

		for _, a := range r.Args {
			if a.Name == "" {
				return nil, &SchemaError{Step: r.Name, Reason: "argument missing required field \"name\""}
			}

			step.DeclaredArgs = append(step.DeclaredArgs, Argument{
				Name:       a.Name,
				SourceStep: a.SourceStep,
				Scatter:    a.Scatter,
				Gather:     a.Gather,
			})

			if a.Scatter > 0 && step.IsScatter == 0 {
				step.IsScatter = a.Scatter
			}

			if a.SourceStep == "" {
				continue
			}

			step.Dependencies[a.SourceStep] = struct{}{}

			if a.Gather > 0 {
				step.GatherFrom[a.SourceStep] = a.Gather
			}
		}

		steps = append(steps, step)
	}

	return steps, nil
}

// ParseMetaWorkflow builds a MetaWorkflow from its identity, raw steps,
// and input declarations.
func ParseMetaWorkflow(id, name string, raw []RawStep, inputs []InputDecl) (*MetaWorkflow, error) {
	steps, err := ParseSteps(raw)
	if err != nil {
		return nil, err
	}
	return &MetaWorkflow{
		ID:         id,
		Name:       name,
		Steps:      steps,
		InputDecls: inputs,
	}, nil
}
