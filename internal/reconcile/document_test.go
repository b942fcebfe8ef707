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
	"testing"

	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRunDoc() map[string]interface{} {
	return map[string]interface{}{
		"uuid":          "run-1",
		"meta_workflow": "mwf-1",
		"final_status":  "running",
		"title":         "a run",
		"project":       "proj-1",
		"institution":   "inst-1",
		"associated_sample_processing": "sp-1",
		"common_fields": map[string]interface{}{
			"award": "award-1",
		},
		"input": map[string]interface{}{
			"files": map[string]interface{}{
				"crams": map[string]interface{}{
					"0": []interface{}{"file-0"},
					"1": []interface{}{"file-1"},
				},
			},
			"parameters": map[string]interface{}{
				"genome": "GRCh38",
			},
		},
		"workflow_runs": []interface{}{
			map[string]interface{}{
				"name":              "A",
				"shard":             "0",
				"status":            "completed",
				"dependencies":      []interface{}{},
				"workflow_run_uuid": "A:0",
				"output":            "out-a0",
				"job_id":            "job-a0",
			},
			map[string]interface{}{
				"name":              "B",
				"shard":             "0",
				"status":            "pending",
				"dependencies":      []interface{}{"A:0"},
				"workflow_run_uuid": "B:0",
				"output":            "",
				"job_id":            "",
			},
		},
	}
}

func TestDecodeRun_RoundTripsShardsAndInput(t *testing.T) {
	run, err := DecodeRun(sampleRunDoc())
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "mwf-1", run.MetaWorkflowID)
	assert.Equal(t, metaworkflow.StatusRunning, run.FinalStatus)
	assert.Equal(t, "award-1", run.CommonFields["award"])
	assert.Equal(t, []string{"file-0"}, run.Input.Files["crams"][0])
	assert.Equal(t, []string{"file-1"}, run.Input.Files["crams"][1])
	assert.Equal(t, "GRCh38", run.Input.Parameters["genome"])

	require.Len(t, run.Shards, 2)
	a0 := run.ShardByID("A:0")
	require.NotNil(t, a0)
	assert.Equal(t, metaworkflow.StatusCompleted, a0.Status)
	assert.Equal(t, "out-a0", a0.OutputHandle)

	b0 := run.ShardByID("B:0")
	require.NotNil(t, b0)
	assert.Equal(t, []string{"A:0"}, b0.Dependencies)
}

func TestEncodeRun_RoundTrip(t *testing.T) {
	run, err := DecodeRun(sampleRunDoc())
	require.NoError(t, err)

	doc := EncodeRun(run, nil)
	assert.Equal(t, "run-1", doc["uuid"])
	assert.Equal(t, "running", doc["final_status"])

	reDecoded, err := DecodeRun(doc)
	require.NoError(t, err)
	assert.Equal(t, run.ID, reDecoded.ID)
	assert.Equal(t, run.Input, reDecoded.Input)
	require.Len(t, reDecoded.Shards, 2)
}

func TestDecodeMetaWorkflow(t *testing.T) {
	doc := map[string]interface{}{
		"uuid":          "mwf-1",
		"name":          "cram-pipeline",
		"end_steps":     []interface{}{"B"},
		"primary_input": "crams",
		"workflows": []interface{}{
			map[string]interface{}{
				"name":    "A",
				"uuid":    "wf-a",
				"outputs": []interface{}{"out_bam"},
				"arguments": []interface{}{
					map[string]interface{}{"argument_name": "crams", "scatter": float64(1)},
				},
			},
			map[string]interface{}{
				"name": "B",
				"uuid": "wf-b",
				"arguments": []interface{}{
					map[string]interface{}{"argument_name": "out_bam", "source_step": "A", "gather": float64(1)},
				},
			},
		},
		"input": []interface{}{
			map[string]interface{}{"argument_name": "crams", "argument_type": "FILE", "dimensionality": float64(1)},
		},
	}

	def, err := DecodeMetaWorkflow(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, def.EndSteps)
	assert.Equal(t, "crams", def.PrimaryInput)

	ordered, err := metaworkflow.Compile(def.MetaWorkflow, def.EndSteps)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "A", ordered[0].Name)
	assert.Equal(t, "B", ordered[1].Name)
	assert.Equal(t, 1, ordered[1].GatherFrom["A"])
}
