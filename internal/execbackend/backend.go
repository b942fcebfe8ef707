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

// Package execbackend talks to the execution backend's narrow submit/
// status contract (§6). The reconciler never knows the backend's wire
// format beyond this interface.
package execbackend

import "context"

// JobStatus is the execution backend's report for a single submitted
// shard, independent of the core's own Status vocabulary (pkg/metaworkflow).
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SubmitRequest carries everything the backend needs to start one
// shard's engine job.
type SubmitRequest struct {
	RunID      string
	StepName   string
	ShardCoord string
	WorkflowID string
	Args       []byte // JSON-encoded []metaworkflow.SubmittedArg
	Retry      int
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	EngineJobID string
}

// StatusResult reports a previously submitted job's current state.
type StatusResult struct {
	Status       JobStatus
	OutputHandle string // populated once Status == JobStatusCompleted
	Message      string
}

// Backend is the execution backend's narrow contract.
type Backend interface {
	// Submit starts a new engine job for one shard and returns its
	// engine-assigned job id.
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)

	// Status polls a previously submitted job by its engine job id.
	Status(ctx context.Context, engineJobID string) (StatusResult, error)
}
