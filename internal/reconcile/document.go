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

// Package reconcile implements the Scheduler/Reconciler: the single-pass
// algorithm that polls the execution backend for running shards, submits
// newly ready ones, and persists the updated Run back to the metadata
// store (§4.7), plus the periodic ticker wrapper that repeats it.
package reconcile

import (
	"fmt"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

// Run document top-level keys (external, stable shape — §6).
const (
	docMetaWorkflow       = "meta_workflow"
	docInput              = "input"
	docWorkflowRuns        = "workflow_runs"
	docFinalStatus         = "final_status"
	docCommonFields        = "common_fields"
	docInputSamples        = "input_samples"
	docAssociatedSP        = "associated_sample_processing"
	docTitle               = "title"
	docProject             = "project"
	docInstitution         = "institution"
	docUUID                = "uuid"
)

// workflow_runs[i] field keys.
const (
	wrName             = "name"
	wrShard            = "shard"
	wrStatus           = "status"
	wrDependencies     = "dependencies"
	wrWorkflowRunUUID  = "workflow_run_uuid"
	wrOutput           = "output"
	wrJobID            = "job_id"
)

// DecodeRun parses a raw Run document (as returned by store.Client.GetItem)
// into a *metaworkflow.Run. The document's input block decodes into
// InputObject.Files/Parameters via the same map[string]interface{} layout
// EncodeRun produces, so round-tripping is lossless for every field this
// package reads or writes.
func DecodeRun(doc map[string]interface{}) (*metaworkflow.Run, error) {
	run := &metaworkflow.Run{
		ID:             stringField(doc, docUUID),
		MetaWorkflowID: stringField(doc, docMetaWorkflow),
		FinalStatus:    metaworkflow.Status(stringField(doc, docFinalStatus)),
		SourceEntityID: stringField(doc, docAssociatedSP),
		Project:        stringField(doc, docProject),
		Institution:    stringField(doc, docInstitution),
		Title:          stringField(doc, docTitle),
	}

	if cf, ok := doc[docCommonFields].(map[string]interface{}); ok {
		run.CommonFields = cf
	} else {
		run.CommonFields = make(map[string]interface{})
	}

	input, err := decodeInputObject(doc[docInput])
	if err != nil {
		return nil, err
	}
	run.Input = input

	shards, err := decodeShards(doc[docWorkflowRuns])
	if err != nil {
		return nil, err
	}
	run.Shards = shards

	return run, nil
}

// EncodeRun renders run back into the external document shape, suitable
// for a store.Client.Post/Patch body. inputSamples is passed through
// verbatim from the Run Factory; the reconciler itself never changes it,
// so EncodeRun accepts it as an already-decoded pass-through value rather
// than a field the reconciler would need to track on *metaworkflow.Run.
// associated_sample_processing is written from run.SourceEntityID.
func EncodeRun(run *metaworkflow.Run, inputSamples []interface{}) map[string]interface{} {
	doc := map[string]interface{}{
		docUUID:          run.ID,
		docMetaWorkflow:  run.MetaWorkflowID,
		docFinalStatus:   string(run.FinalStatus),
		docAssociatedSP:  run.SourceEntityID,
		docProject:       run.Project,
		docInstitution:   run.Institution,
		docTitle:         run.Title,
		docCommonFields:  run.CommonFields,
		docInput:         encodeInputObject(run.Input),
		docWorkflowRuns:  encodeShards(run.Shards),
	}
	if inputSamples != nil {
		doc[docInputSamples] = inputSamples
	}
	return doc
}

func decodeInputObject(raw interface{}) (metaworkflow.InputObject, error) {
	input := metaworkflow.NewInputObject()
	m, ok := raw.(map[string]interface{})
	if !ok {
		return input, nil
	}

	if files, ok := m["files"].(map[string]interface{}); ok {
		for name, bySampleRaw := range files {
			bySample, ok := bySampleRaw.(map[string]interface{})
			if !ok {
				continue
			}
			decoded := make(map[int][]string, len(bySample))
			for idxStr, v := range bySample {
				idx, err := parseSampleIndex(idxStr)
				if err != nil {
					return input, err
				}
				decoded[idx] = toStringSlice(v)
			}
			input.Files[name] = decoded
		}
	}

	if params, ok := m["parameters"].(map[string]interface{}); ok {
		for k, v := range params {
			input.Parameters[k] = v
		}
	}

	return input, nil
}

func encodeInputObject(input metaworkflow.InputObject) map[string]interface{} {
	files := make(map[string]interface{}, len(input.Files))
	for name, bySample := range input.Files {
		encoded := make(map[string]interface{}, len(bySample))
		for idx, handles := range bySample {
			encoded[fmt.Sprintf("%d", idx)] = handles
		}
		files[name] = encoded
	}
	return map[string]interface{}{
		"files":      files,
		"parameters": input.Parameters,
	}
}

func decodeShards(raw interface{}) ([]*metaworkflow.ShardRecord, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}

	shards := make([]*metaworkflow.ShardRecord, 0, len(items))
	for _, itemRaw := range items {
		item, ok := itemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		shards = append(shards, &metaworkflow.ShardRecord{
			StepName:     stringField(item, wrName),
			ShardCoord:   stringField(item, wrShard),
			Status:       metaworkflow.Status(stringField(item, wrStatus)),
			OutputHandle: stringField(item, wrOutput),
			EngineJobID:  stringField(item, wrJobID),
			Dependencies: toStringSlice(item[wrDependencies]),
		})
	}
	return shards, nil
}

func encodeShards(shards []*metaworkflow.ShardRecord) []interface{} {
	out := make([]interface{}, 0, len(shards))
	for _, s := range shards {
		out = append(out, map[string]interface{}{
			wrName:            s.StepName,
			wrShard:           s.ShardCoord,
			wrStatus:          string(s.Status),
			wrDependencies:    s.Dependencies,
			wrWorkflowRunUUID: s.ID(),
			wrOutput:          s.OutputHandle,
			wrJobID:           s.EngineJobID,
		})
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseSampleIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, &mwferrors.ValidationError{Field: "input.files", Message: "empty sample index key"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &mwferrors.ValidationError{Field: "input.files", Message: fmt.Sprintf("non-numeric sample index key %q", s)}
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
