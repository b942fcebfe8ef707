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

import "fmt"

// SchemaError indicates a meta-workflow definition is missing a required
// field or otherwise fails to parse into a Step.
type SchemaError struct {
	Step   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("schema error in step %q: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("schema error: %s", e.Reason)
}

// DuplicateStepError indicates two steps in a meta-workflow share a name.
type DuplicateStepError struct {
	Step string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step name: %q", e.Step)
}

// MissingDepError indicates a step references a predecessor that does not
// exist in the meta-workflow, or an end step is not reachable.
type MissingDepError struct {
	Step string
	Dep  string
}

func (e *MissingDepError) Error() string {
	return fmt.Sprintf("step %q references missing dependency %q", e.Step, e.Dep)
}

// MissingInputError indicates a required input value was not supplied by
// the caller, or an upstream shard's output is absent at materialization
// time.
type MissingInputError struct {
	Step  string
	Shard string
	Name  string
}

func (e *MissingInputError) Error() string {
	if e.Shard != "" {
		return fmt.Sprintf("missing input %q for %s:%s", e.Name, e.Step, e.Shard)
	}
	return fmt.Sprintf("missing input %q for step %q", e.Name, e.Step)
}

// ShapeUnsupportedError indicates the caller's FILE input value could not
// be analyzed into a Shape (dimensionality beyond 3, or inconsistent
// nesting).
type ShapeUnsupportedError struct {
	Name   string
	Reason string
}

func (e *ShapeUnsupportedError) Error() string {
	return fmt.Sprintf("unsupported shape for input %q: %s", e.Name, e.Reason)
}

// DimUnsupportedError indicates an InputDecl declared a dimensionality the
// compiler does not support.
type DimUnsupportedError struct {
	Name string
	Dim  int
}

func (e *DimUnsupportedError) Error() string {
	return fmt.Sprintf("unsupported dimension %d for input %q", e.Dim, e.Name)
}

// FileCardinalityError indicates a dim=1 FILE input carried more than one
// file for a given sample index.
type FileCardinalityError struct {
	Name         string
	SampleIndex  int
	FoundFiles   int
}

func (e *FileCardinalityError) Error() string {
	return fmt.Sprintf("input %q sample %d: expected exactly 1 file, found %d", e.Name, e.SampleIndex, e.FoundFiles)
}

// IllegalTransitionError indicates a ShardRecord status transition that
// violates the forward-only state machine.
type IllegalTransitionError struct {
	ShardID string
	From    Status
	To      Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition for shard %s: %s -> %s", e.ShardID, e.From, e.To)
}
