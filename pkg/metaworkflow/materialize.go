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
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// SubmittedArg is one materialized argument bound for a shard's job
// submission: a discriminated variant of File, FileList, or Parameter.
type SubmittedArg struct {
	Name      string
	Type      InputType
	File      string // uuid, set when Type == InputTypeFile and a single file
	Dimension string // dimension coordinate string, e.g. "2" or "1,3"
	Value     string // serialized text, set when Type == InputTypeParameter
	ValueType string
}

// OutputLookup resolves a completed shard's output handle(s), keyed by
// "step_name:shard_coord". The Run State satisfies this during
// reconciliation; tests may supply a plain map.
type OutputLookup interface {
	Output(shardID string) (string, bool)
}

// mapOutputLookup adapts a plain map to OutputLookup, used by tests and by
// the Reconciler when it has already loaded a Run into memory.
type mapOutputLookup map[string]string

func (m mapOutputLookup) Output(shardID string) (string, bool) {
	v, ok := m[shardID]
	return v, ok
}

// RunOutputLookup adapts a *Run to OutputLookup.
type RunOutputLookup struct{ Run *Run }

func (r RunOutputLookup) Output(shardID string) (string, bool) {
	shard := r.Run.ShardByID(shardID)
	if shard == nil || shard.OutputHandle == "" {
		return "", false
	}
	return shard.OutputHandle, true
}

// Materialize builds the full submitted argument list for shard (step,
// shardCoord), pulling parameter values from input, declared literal
// defaults from the meta-workflow, caller-supplied file values from input,
// and upstream shard outputs from outputs.
//
// shardCoord and scatterOf are nil/empty for a "seed" materialization (the
// Run Factory's call with no S/s, used to compute the run's frozen input
// block); in that mode every file-sourced-from-upstream argument is
// skipped, since no shard context exists yet.
func Materialize(mwf *MetaWorkflow, step *Step, shardCoord Coordinate, shape Shape, scatterOf map[string]int, deps []string, input InputObject, outputs OutputLookup) ([]SubmittedArg, error) {
	var args []SubmittedArg

	for _, arg := range step.DeclaredArgs {
		decl := mwf.InputDeclByName(arg.Name)

		switch {
		case arg.SourceStep == "" && decl != nil && decl.Type == InputTypeParameter:
			a, err := materializeParameter(*decl, input)
			if err != nil {
				return nil, err
			}
			args = append(args, a)

		case arg.SourceStep == "" && decl != nil && decl.Type == InputTypeFile && decl.Files != nil:
			args = append(args, materializeLiteralFiles(*decl)...)

		case arg.SourceStep == "" && decl != nil && decl.Type == InputTypeFile:
			fileArgs, err := materializeCallerFile(*decl, input)
			if err != nil {
				return nil, err
			}
			args = append(args, fileArgs...)

		case arg.SourceStep == "" && decl == nil:
			return nil, &SchemaError{Step: step.Name, Reason: fmt.Sprintf("unknown argument %q: no matching input declaration", arg.Name)}

		case arg.SourceStep != "":
			if shardCoord == nil {
				continue
			}
			fileArgs, err := materializeUpstream(step, arg, shardCoord, shape, scatterOf, deps, outputs)
			if err != nil {
				return nil, err
			}
			args = append(args, fileArgs...)
		}
	}

	return args, nil
}

func materializeParameter(decl InputDecl, input InputObject) (SubmittedArg, error) {
	val, ok := decl.Value, decl.Value != nil
	if !ok {
		val, ok = input.Parameters[decl.Name]
	}
	if !ok {
		val, ok = input.Parameters[foldName(decl.Name)]
	}
	if !ok {
		return SubmittedArg{}, &MissingInputError{Name: decl.Name}
	}

	if decl.Extract != "" {
		extracted, err := applyExtract(decl.Extract, val)
		if err != nil {
			return SubmittedArg{}, err
		}
		val = extracted
	}

	text, valueType := serializeParameter(val)

	return SubmittedArg{
		Name:      decl.Name,
		Type:      InputTypeParameter,
		Value:     text,
		ValueType: valueType,
	}, nil
}

// applyExtract evaluates a gojq expression against val, used to pull a
// nested field out of a structured PARAMETER value before serialization.
func applyExtract(expr string, val interface{}) (interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid extract expression %q: %v", expr, err)}
	}

	// Round-trip through JSON so struct-typed Go values are presented to
	// gojq as the plain maps/slices it operates on.
	normalized, err := jsonRoundTrip(val)
	if err != nil {
		return nil, err
	}

	iter := query.Run(normalized)
	v, ok := iter.Next()
	if !ok {
		return nil, &SchemaError{Reason: fmt.Sprintf("extract expression %q produced no value", expr)}
	}
	if err, isErr := v.(error); isErr {
		return nil, &SchemaError{Reason: fmt.Sprintf("extract expression %q failed: %v", expr, err)}
	}
	return v, nil
}

func jsonRoundTrip(val interface{}) (interface{}, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// serializeParameter renders a parameter value as its submitted text
// form: lists/structures become compact JSON, everything else its string
// form.
func serializeParameter(val interface{}) (text string, valueType string) {
	switch v := val.(type) {
	case string:
		return v, "string"
	case []interface{}:
		b, _ := json.Marshal(v)
		return string(b), "array"
	case map[string]interface{}:
		b, _ := json.Marshal(v)
		return string(b), "object"
	case bool:
		return fmt.Sprintf("%v", v), "boolean"
	case nil:
		return "", "string"
	default:
		b, err := json.Marshal(v)
		if err == nil {
			var asSlice []interface{}
			if json.Unmarshal(b, &asSlice) == nil {
				return string(b), "array"
			}
			var asMap map[string]interface{}
			if json.Unmarshal(b, &asMap) == nil {
				return string(b), "object"
			}
		}
		return fmt.Sprintf("%v", v), "number"
	}
}

func materializeLiteralFiles(decl InputDecl) []SubmittedArg {
	var args []SubmittedArg
	for sample := 0; sample < len(decl.Files); sample++ {
		files := decl.Files[sample]
		for j, f := range files {
			dim := fmt.Sprintf("%d", sample)
			if decl.Dim == 2 {
				dim = fmt.Sprintf("%d,%d", sample, j)
			}
			args = append(args, SubmittedArg{
				Name:      decl.Name,
				Type:      InputTypeFile,
				File:      f,
				Dimension: dim,
			})
		}
	}
	return args
}

func materializeCallerFile(decl InputDecl, input InputObject) ([]SubmittedArg, error) {
	files, ok := input.Files[decl.Name]
	if !ok {
		files, ok = input.Files[foldName(decl.Name)]
	}
	if !ok {
		return nil, &MissingInputError{Name: decl.Name}
	}

	switch decl.Dim {
	case 1:
		var args []SubmittedArg
		for sample := 0; sample < len(files); sample++ {
			fl := files[sample]
			if len(fl) != 1 {
				return nil, &FileCardinalityError{Name: decl.Name, SampleIndex: sample, FoundFiles: len(fl)}
			}
			args = append(args, SubmittedArg{
				Name:      decl.Name,
				Type:      InputTypeFile,
				File:      fl[0],
				Dimension: fmt.Sprintf("%d", sample),
			})
		}
		return args, nil
	case 2:
		var args []SubmittedArg
		for sample := 0; sample < len(files); sample++ {
			fl := files[sample]
			for j, f := range fl {
				args = append(args, SubmittedArg{
					Name:      decl.Name,
					Type:      InputTypeFile,
					File:      f,
					Dimension: fmt.Sprintf("%d,%d", sample, j),
				})
			}
		}
		return args, nil
	default:
		return nil, &DimUnsupportedError{Name: decl.Name, Dim: decl.Dim}
	}
}

// materializeUpstream resolves an argument sourced from an upstream
// shard's output(s), consulting outputs for each dependency shard already
// computed by the Run Builder (deps), restricted to the predecessor named
// by arg.SourceStep.
func materializeUpstream(step *Step, arg Argument, shardCoord Coordinate, shape Shape, scatterOf map[string]int, deps []string, outputs OutputLookup) ([]SubmittedArg, error) {
	prefix := arg.SourceStep + ":"
	var args []SubmittedArg

	for _, depID := range deps {
		if len(depID) <= len(prefix) || depID[:len(prefix)] != prefix {
			continue
		}
		coordStr := depID[len(prefix):]

		handle, ok := outputs.Output(depID)
		if !ok {
			return nil, &MissingInputError{Step: step.Name, Shard: shardCoord.String(), Name: arg.Name}
		}

		args = append(args, SubmittedArg{
			Name:      arg.Name,
			Type:      InputTypeFile,
			File:      handle,
			Dimension: coordStr,
		})
	}

	if len(args) == 0 {
		return nil, &MissingInputError{Step: step.Name, Shard: shardCoord.String(), Name: arg.Name}
	}

	return args, nil
}
