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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/execbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory store.Client double, enough to drive
// the reconciler without modernc.org/sqlite in the test binary.
type fakeStore struct {
	docs map[string]map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]map[string]interface{})}
}

func (f *fakeStore) GetItem(_ context.Context, id string) (map[string]interface{}, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, assert.AnError
	}
	return deepCopyMap(doc), nil
}

func (f *fakeStore) Post(_ context.Context, _ string, body map[string]interface{}) (map[string]interface{}, error) {
	id, _ := body["uuid"].(string)
	f.docs[id] = body
	return body, nil
}

func (f *fakeStore) Patch(_ context.Context, id string, body map[string]interface{}) error {
	f.docs[id] = body
	return nil
}

func (f *fakeStore) Embed(_ context.Context, ids []string, _ []string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ map[string]string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fakeBackend is a scripted execbackend.Backend double.
type fakeBackend struct {
	submitCalls []execbackend.SubmitRequest
	nextJobID   int
	statuses    map[string]execbackend.StatusResult
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{statuses: make(map[string]execbackend.StatusResult)}
}

func (b *fakeBackend) Submit(_ context.Context, req execbackend.SubmitRequest) (execbackend.SubmitResult, error) {
	b.submitCalls = append(b.submitCalls, req)
	b.nextJobID++
	id := req.StepName + "-job-" + string(rune('0'+b.nextJobID))
	return execbackend.SubmitResult{EngineJobID: id}, nil
}

func (b *fakeBackend) Status(_ context.Context, engineJobID string) (execbackend.StatusResult, error) {
	return b.statuses[engineJobID], nil
}

func linearMetaWorkflowDoc() map[string]interface{} {
	return map[string]interface{}{
		"uuid":          "mwf-1",
		"name":          "linear",
		"end_steps":     []interface{}{"B"},
		"primary_input": "crams",
		"workflows": []interface{}{
			map[string]interface{}{
				"name": "A",
				"uuid": "wf-a",
				"arguments": []interface{}{
					map[string]interface{}{"argument_name": "crams"},
				},
			},
			map[string]interface{}{
				"name": "B",
				"uuid": "wf-b",
				"arguments": []interface{}{
					map[string]interface{}{"argument_name": "out_bam", "source_step": "A"},
				},
			},
		},
		"input": []interface{}{
			map[string]interface{}{"argument_name": "crams", "argument_type": "FILE", "dimensionality": float64(1)},
		},
	}
}

func linearRunDoc() map[string]interface{} {
	return map[string]interface{}{
		"uuid":          "run-1",
		"meta_workflow": "mwf-1",
		"final_status":  "pending",
		"input": map[string]interface{}{
			"files": map[string]interface{}{
				"crams": map[string]interface{}{"0": []interface{}{"cram-0"}},
			},
			"parameters": map[string]interface{}{},
		},
		"common_fields": map[string]interface{}{},
		"workflow_runs": []interface{}{
			map[string]interface{}{"name": "A", "shard": "0", "status": "pending", "dependencies": []interface{}{}, "workflow_run_uuid": "A:0"},
			map[string]interface{}{"name": "B", "shard": "0", "status": "pending", "dependencies": []interface{}{"A:0"}, "workflow_run_uuid": "B:0"},
		},
	}
}

func TestReconciler_SubmitsOnlyReadyShard(t *testing.T) {
	st := newFakeStore()
	st.docs["run-1"] = linearRunDoc()
	st.docs["mwf-1"] = linearMetaWorkflowDoc()
	backend := newFakeBackend()

	rc := New(Config{Store: st, Backend: backend})
	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))

	require.Len(t, backend.submitCalls, 1, "only A:0 is ready; B:0 depends on A:0")
	assert.Equal(t, "A", backend.submitCalls[0].StepName)

	run, err := DecodeRun(st.docs["run-1"])
	require.NoError(t, err)
	assert.Equal(t, "running", string(run.ShardByID("A:0").Status))
	assert.Equal(t, "pending", string(run.ShardByID("B:0").Status))
}

func TestReconciler_PollsRunningAndAdvancesOnCompletion(t *testing.T) {
	st := newFakeStore()
	doc := linearRunDoc()
	runs := doc["workflow_runs"].([]interface{})
	runs[0] = map[string]interface{}{"name": "A", "shard": "0", "status": "running", "dependencies": []interface{}{}, "workflow_run_uuid": "A:0", "job_id": "job-a0"}
	st.docs["run-1"] = doc
	st.docs["mwf-1"] = linearMetaWorkflowDoc()

	backend := newFakeBackend()
	backend.statuses["job-a0"] = execbackend.StatusResult{Status: execbackend.JobStatusCompleted, OutputHandle: "bam-0"}

	rc := New(Config{Store: st, Backend: backend})
	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))

	require.Len(t, backend.submitCalls, 1, "B:0 becomes ready once A:0 completes")
	assert.Equal(t, "B", backend.submitCalls[0].StepName)

	run, err := DecodeRun(st.docs["run-1"])
	require.NoError(t, err)
	assert.Equal(t, "completed", string(run.ShardByID("A:0").Status))
	assert.Equal(t, "bam-0", run.ShardByID("A:0").OutputHandle)
	assert.Equal(t, "running", string(run.ShardByID("B:0").Status))
}

func TestReconciler_FailureIsolatesToOneShard(t *testing.T) {
	st := newFakeStore()
	doc := linearRunDoc()
	runs := doc["workflow_runs"].([]interface{})
	runs[0] = map[string]interface{}{"name": "A", "shard": "0", "status": "running", "dependencies": []interface{}{}, "workflow_run_uuid": "A:0", "job_id": "job-a0"}
	st.docs["run-1"] = doc
	st.docs["mwf-1"] = linearMetaWorkflowDoc()

	backend := newFakeBackend()
	backend.statuses["job-a0"] = execbackend.StatusResult{Status: execbackend.JobStatusFailed}

	rc := New(Config{Store: st, Backend: backend})
	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))

	run, err := DecodeRun(st.docs["run-1"])
	require.NoError(t, err)
	assert.Equal(t, "failed", string(run.ShardByID("A:0").Status))
	assert.Equal(t, "pending", string(run.ShardByID("B:0").Status), "B:0 never becomes ready since its dependency failed")
	assert.Equal(t, "failed", string(run.FinalStatus))
	assert.Empty(t, backend.submitCalls, "no new submissions once the only ready path failed upstream")
}

func TestReconciler_SkipsTerminalRun(t *testing.T) {
	st := newFakeStore()
	doc := linearRunDoc()
	doc["final_status"] = "stopped"
	st.docs["run-1"] = doc
	st.docs["mwf-1"] = linearMetaWorkflowDoc()

	backend := newFakeBackend()
	rc := New(Config{Store: st, Backend: backend})
	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))

	assert.Empty(t, backend.submitCalls)
}

func TestReconciler_RoundTripIdempotentOnTerminalRun(t *testing.T) {
	st := newFakeStore()
	doc := linearRunDoc()
	runsList := doc["workflow_runs"].([]interface{})
	runsList[0] = map[string]interface{}{"name": "A", "shard": "0", "status": "completed", "dependencies": []interface{}{}, "workflow_run_uuid": "A:0", "output": "bam-0"}
	runsList[1] = map[string]interface{}{"name": "B", "shard": "0", "status": "completed", "dependencies": []interface{}{"A:0"}, "workflow_run_uuid": "B:0", "output": "out-b0"}
	doc["final_status"] = "completed"
	st.docs["run-1"] = doc
	st.docs["mwf-1"] = linearMetaWorkflowDoc()

	backend := newFakeBackend()
	rc := New(Config{Store: st, Backend: backend})

	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))
	first, err := DecodeRun(st.docs["run-1"])
	require.NoError(t, err)

	require.NoError(t, rc.Reconcile(context.Background(), "run-1"))
	second, err := DecodeRun(st.docs["run-1"])
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, backend.submitCalls)
}

// concurrencyTrackingBackend records the peak number of in-flight Status
// calls, to verify pollRunning actually fans requests out rather than
// serializing them.
type concurrencyTrackingBackend struct {
	fakeBackend
	mu      sync.Mutex
	current int
	peak    int
}

func (b *concurrencyTrackingBackend) Status(ctx context.Context, engineJobID string) (execbackend.StatusResult, error) {
	b.mu.Lock()
	b.current++
	if b.current > b.peak {
		b.peak = b.current
	}
	b.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	b.mu.Lock()
	b.current--
	b.mu.Unlock()

	return b.fakeBackend.Status(ctx, engineJobID)
}

func manyRunningShardsDoc(n int) map[string]interface{} {
	runs := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		shard := fmt.Sprintf("%d", i)
		runs = append(runs, map[string]interface{}{
			"name": "A", "shard": shard, "status": "running",
			"dependencies": []interface{}{}, "workflow_run_uuid": "A:" + shard,
			"job_id": "job-a" + shard,
		})
	}
	return map[string]interface{}{
		"uuid":          "run-wide",
		"meta_workflow": "mwf-1",
		"final_status":  "pending",
		"input": map[string]interface{}{
			"files":      map[string]interface{}{"crams": map[string]interface{}{"0": []interface{}{"cram-0"}}},
			"parameters": map[string]interface{}{},
		},
		"common_fields": map[string]interface{}{},
		"workflow_runs": runs,
	}
}

func TestReconciler_PollRunningBoundsConcurrency(t *testing.T) {
	const shardCount = 20
	const concurrency = 4

	st := newFakeStore()
	st.docs["run-wide"] = manyRunningShardsDoc(shardCount)
	st.docs["mwf-1"] = linearMetaWorkflowDoc()

	backend := &concurrencyTrackingBackend{fakeBackend: *newFakeBackend()}
	for i := 0; i < shardCount; i++ {
		shard := fmt.Sprintf("%d", i)
		backend.statuses["job-a"+shard] = execbackend.StatusResult{Status: execbackend.JobStatusCompleted, OutputHandle: "out-" + shard}
	}

	rc := New(Config{Store: st, Backend: backend, StatusConcurrency: concurrency})
	require.NoError(t, rc.Reconcile(context.Background(), "run-wide"))

	assert.Greater(t, backend.peak, 1, "status queries should overlap, not run one at a time")
	assert.LessOrEqual(t, backend.peak, concurrency, "concurrency must stay within StatusConcurrency")

	run, err := DecodeRun(st.docs["run-wide"])
	require.NoError(t, err)
	for i := 0; i < shardCount; i++ {
		shard := fmt.Sprintf("%d", i)
		assert.Equal(t, "completed", string(run.ShardByID("A:"+shard).Status))
	}
}
