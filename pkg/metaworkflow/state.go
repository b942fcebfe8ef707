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

// forwardTransitions enumerates every legal (from, to) pair. There are no
// backward transitions; Stopped and QualityMetricFailed are reachable only
// via explicit caller command (SetTerminal), not via Transition.
var forwardTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusRunning: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true},
}

// Ready returns the shards that are StatusPending and whose every
// dependency shard is StatusCompleted.
func (r *Run) Ready() []*ShardRecord {
	var ready []*ShardRecord
	for _, shard := range r.Shards {
		if shard.Status != StatusPending {
			continue
		}
		if r.allDepsCompleted(shard) {
			ready = append(ready, shard)
		}
	}
	return ready
}

func (r *Run) allDepsCompleted(shard *ShardRecord) bool {
	for _, depID := range shard.Dependencies {
		dep := r.ShardByID(depID)
		if dep == nil || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Transition moves a shard to newStatus, enforcing the forward-only state
// machine (pending -> running -> {completed, failed}). Returns
// IllegalTransitionError for any other attempted move. outputHandle is
// recorded only on a transition to StatusCompleted.
func (r *Run) Transition(shardID string, newStatus Status, outputHandle string) error {
	shard := r.ShardByID(shardID)
	if shard == nil {
		return &MissingInputError{Step: shardID, Name: "shard"}
	}

	allowed := forwardTransitions[shard.Status]
	if !allowed[newStatus] {
		return &IllegalTransitionError{ShardID: shardID, From: shard.Status, To: newStatus}
	}

	shard.Status = newStatus
	if newStatus == StatusCompleted {
		shard.OutputHandle = outputHandle
	}

	return nil
}

// ResetFailed reverts every StatusFailed shard back to StatusPending,
// clearing its recorded engine job and output so the next reconciliation
// cycle resubmits it. This is an explicit caller command, like
// SetTerminal — the Scheduler never calls it, and it is the one
// sanctioned exception to the forward-only transition table enforced by
// Transition. It returns the number of shards reset.
func (r *Run) ResetFailed() int {
	var n int
	for _, shard := range r.Shards {
		if shard.Status != StatusFailed {
			continue
		}
		shard.Status = StatusPending
		shard.EngineJobID = ""
		shard.OutputHandle = ""
		n++
	}
	return n
}

// SetTerminal force-sets the Run's FinalStatus to an explicit terminal
// value (StatusStopped or StatusQualityMetricFailed), bypassing the
// derived FinalStatus computation. Only a caller command may do this; the
// Scheduler never calls it.
func (r *Run) SetTerminal(status Status) {
	r.FinalStatus = status
}

// RecomputeFinalStatus recomputes and returns the Run's derived final
// status: failed once any shard has failed and no shard is still running;
// completed if every shard completed; running if any shard is running;
// pending otherwise. A previously force-set
// terminal value (Stopped, QualityMetricFailed) is preserved rather than
// recomputed.
func (r *Run) RecomputeFinalStatus() Status {
	if r.FinalStatus == StatusStopped || r.FinalStatus == StatusQualityMetricFailed {
		return r.FinalStatus
	}

	var anyFailed, anyRunning, allCompleted bool
	allCompleted = len(r.Shards) > 0

	for _, shard := range r.Shards {
		switch shard.Status {
		case StatusFailed:
			anyFailed = true
			allCompleted = false
		case StatusRunning:
			anyRunning = true
			allCompleted = false
		case StatusPending:
			allCompleted = false
		}
	}

	switch {
	case anyFailed && !anyRunning:
		r.FinalStatus = StatusFailed
	case allCompleted:
		r.FinalStatus = StatusCompleted
	case anyRunning:
		r.FinalStatus = StatusRunning
	default:
		r.FinalStatus = StatusPending
	}

	return r.FinalStatus
}
