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

package reconcile

import (
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

// MetaWorkflowDefinition bundles a parsed MetaWorkflow with the two facts
// about it the spec leaves outside the Run document proper: the end_steps
// list that seeds DAG compilation, and the name of the primary FILE input
// whose Shape drives shard enumeration (§4.8 step 4). The metadata store
// has no fixed schema for a meta_workflow item beyond what the original
// "workflows"/"input" lists carried, so this package owns the decode.
type MetaWorkflowDefinition struct {
	MetaWorkflow *metaworkflow.MetaWorkflow
	EndSteps     []string
	PrimaryInput string
}

// DecodeMetaWorkflow parses a meta_workflow document fetched from the
// metadata store. Expected shape:
//
//	{
//	  "uuid": "...", "name": "...",
//	  "end_steps": ["C"],
//	  "primary_input": "crams",
//	  "workflows": [{"name":"A","uuid":"...","outputs":["out_bam"],
//	                 "arguments":[{"argument_name":"crams","source_step":"","scatter":1}]}],
//	  "input": [{"argument_name":"crams","argument_type":"FILE","dimensionality":1}]
//	}
func DecodeMetaWorkflow(doc map[string]interface{}) (MetaWorkflowDefinition, error) {
	id := stringField(doc, docUUID)
	name := stringField(doc, "name")

	rawSteps, err := decodeRawSteps(doc["workflows"])
	if err != nil {
		return MetaWorkflowDefinition{}, err
	}

	inputDecls, err := decodeInputDecls(doc["input"])
	if err != nil {
		return MetaWorkflowDefinition{}, err
	}

	mwf, err := metaworkflow.ParseMetaWorkflow(id, name, rawSteps, inputDecls)
	if err != nil {
		return MetaWorkflowDefinition{}, err
	}

	endSteps := toStringSlice(doc["end_steps"])
	if len(endSteps) == 0 {
		return MetaWorkflowDefinition{}, &mwferrors.ValidationError{Field: "end_steps", Message: "meta_workflow document declares no end_steps"}
	}

	return MetaWorkflowDefinition{
		MetaWorkflow: mwf,
		EndSteps:     endSteps,
		PrimaryInput: stringField(doc, "primary_input"),
	}, nil
}

func decodeRawSteps(raw interface{}) ([]metaworkflow.RawStep, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, &mwferrors.ValidationError{Field: "workflows", Message: "meta_workflow document carries no step list"}
	}

	steps := make([]metaworkflow.RawStep, 0, len(items))
	for _, itemRaw := range items {
		item, ok := itemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		args, err := decodeRawArguments(item["arguments"])
		if err != nil {
			return nil, err
		}
		steps = append(steps, metaworkflow.RawStep{
			Name:    stringField(item, "name"),
			UUID:    stringField(item, docUUID),
			Outputs: toStringSlice(item["outputs"]),
			Args:    args,
		})
	}
	return steps, nil
}

func decodeRawArguments(raw interface{}) ([]metaworkflow.RawArgument, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}
	args := make([]metaworkflow.RawArgument, 0, len(items))
	for _, itemRaw := range items {
		item, ok := itemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		args = append(args, metaworkflow.RawArgument{
			Name:       stringField(item, "argument_name"),
			SourceStep: stringField(item, "source_step"),
			Scatter:    intField(item, "scatter"),
			Gather:     intField(item, "gather"),
		})
	}
	return args, nil
}

func decodeInputDecls(raw interface{}) ([]metaworkflow.InputDecl, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}

	decls := make([]metaworkflow.InputDecl, 0, len(items))
	for _, itemRaw := range items {
		item, ok := itemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		decl := metaworkflow.InputDecl{
			Name:      stringField(item, "argument_name"),
			Type:      metaworkflow.InputType(stringField(item, "argument_type")),
			Dim:       intField(item, "dimensionality"),
			ValueType: stringField(item, "value_type"),
			Extract:   stringField(item, "extract"),
		}
		if v, ok := item["value"]; ok {
			decl.Value = v
		}
		if filesRaw, ok := item["files"].(map[string]interface{}); ok {
			files := make(map[int][]string, len(filesRaw))
			for idxStr, v := range filesRaw {
				idx, err := parseSampleIndex(idxStr)
				if err != nil {
					return nil, err
				}
				files[idx] = toStringSlice(v)
			}
			decl.Files = files
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
