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
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/execbackend"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/log"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/store"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// engineToCoreStatus maps the execution backend's status vocabulary onto
// the core's own ShardRecord status (§4.7 step 2). Any backend status
// other than completed/running/queued is treated as failed — the backend
// is authoritative and the core does not attempt to interpret its error
// detail beyond that.
func engineToCoreStatus(s execbackend.JobStatus) metaworkflow.Status {
	switch s {
	case execbackend.JobStatusCompleted:
		return metaworkflow.StatusCompleted
	case execbackend.JobStatusRunning, execbackend.JobStatusQueued:
		return metaworkflow.StatusRunning
	default:
		return metaworkflow.StatusFailed
	}
}

// Config assembles a Reconciler's collaborators. Store and Backend are
// required; Metrics, Tracer, and Logger default to no-ops when absent so
// the reconciler can be unit-tested without an observability stack wired
// up.
type Config struct {
	Store   store.Client
	Backend execbackend.Backend
	Loader  MetaWorkflowDefinitionLoader

	Metrics *tracing.MetricsCollector
	Tracer  trace.Tracer
	Logger  *slog.Logger

	// MaxSubmitPerCycle caps how many ready shards one Reconcile call
	// submits; 0 means unbounded (submit every ready shard).
	MaxSubmitPerCycle int

	// StatusConcurrency bounds how many backend Status calls pollRunning
	// dispatches at once; 0 defaults to 8.
	StatusConcurrency int
}

// MetaWorkflowDefinitionLoader resolves a meta_workflow id to its parsed
// definition. The default implementation (StoreLoader) fetches the
// document from the same metadata store the Run lives in.
type MetaWorkflowDefinitionLoader interface {
	Load(ctx context.Context, metaWorkflowID string) (MetaWorkflowDefinition, error)
}

// StoreLoader is the MetaWorkflowDefinitionLoader backed by store.Client.
type StoreLoader struct{ Store store.Client }

// Load implements MetaWorkflowDefinitionLoader.
func (l StoreLoader) Load(ctx context.Context, metaWorkflowID string) (MetaWorkflowDefinition, error) {
	doc, err := l.Store.GetItem(ctx, metaWorkflowID)
	if err != nil {
		return MetaWorkflowDefinition{}, err
	}
	return DecodeMetaWorkflow(doc)
}

// Reconciler implements the single-pass algorithm of §4.7: poll running
// shards, submit newly ready ones, recompute and persist final_status.
// A Reconciler is safe to reuse across runs but must not be called
// concurrently for the same run id (§5 — the caller serializes at run
// granularity).
type Reconciler struct {
	store   store.Client
	backend execbackend.Backend
	loader  MetaWorkflowDefinitionLoader

	metrics *tracing.MetricsCollector
	tracer  trace.Tracer
	logger  *slog.Logger

	maxSubmitPerCycle int
	statusConcurrency int
}

// New constructs a Reconciler from cfg.
func New(cfg Config) *Reconciler {
	loader := cfg.Loader
	if loader == nil {
		loader = StoreLoader{Store: cfg.Store}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	statusConcurrency := cfg.StatusConcurrency
	if statusConcurrency <= 0 {
		statusConcurrency = 8
	}
	return &Reconciler{
		store:             cfg.Store,
		backend:           cfg.Backend,
		loader:            loader,
		metrics:           cfg.Metrics,
		tracer:            cfg.Tracer,
		logger:            logger,
		maxSubmitPerCycle: cfg.MaxSubmitPerCycle,
		statusConcurrency: statusConcurrency,
	}
}

// Reconcile runs one pass over runID: it is idempotent and safe to repeat.
// A run whose final_status is already a terminal value (stopped, or every
// shard having reached a terminal status with nothing pending) observes
// no state change on repeat calls (§8 Round-trip property).
func (rc *Reconciler) Reconcile(ctx context.Context, runID string) error {
	start := time.Now()
	ctx, span := rc.startSpan(ctx, "reconcile.cycle", attribute.String("run_id", runID))
	defer span.End()

	doc, err := rc.store.GetItem(ctx, runID)
	if err != nil {
		rc.recordBackendError("store")
		return mwferrors.Wrap(err, "loading run document")
	}

	run, err := DecodeRun(doc)
	if err != nil {
		return mwferrors.Wrap(err, "decoding run document")
	}

	logger := log.WithRunContext(rc.logger, run.ID, run.MetaWorkflowID)

	if run.FinalStatus == metaworkflow.StatusStopped || run.FinalStatus == metaworkflow.StatusQualityMetricFailed {
		logger.Debug("run is in a terminal caller-set state, skipping", slog.String(log.EventKey, "reconcile.skip_terminal"))
		return nil
	}

	def, err := rc.loader.Load(ctx, run.MetaWorkflowID)
	if err != nil {
		rc.recordBackendError("store")
		return mwferrors.Wrap(err, "loading meta-workflow definition")
	}

	shape, err := rc.primaryShape(run, def)
	if err != nil {
		return err
	}

	if err := rc.pollRunning(ctx, run, logger); err != nil {
		return err
	}

	if err := rc.submitReady(ctx, run, def, shape, logger); err != nil {
		return err
	}

	run.RecomputeFinalStatus()

	if err := rc.store.Patch(ctx, run.ID, EncodeRun(run, toInterfaceSlice(doc[docInputSamples]))); err != nil {
		rc.recordBackendError("store")
		return mwferrors.Wrap(err, "persisting reconciled run")
	}

	if rc.metrics != nil {
		rc.metrics.RecordCycle(ctx, time.Since(start))
		if isTerminal(run.FinalStatus) {
			rc.metrics.RecordRunComplete(ctx, run.ID, run.MetaWorkflowID, string(run.FinalStatus), time.Since(start))
		}
	}

	return nil
}

// shardStatusResult is one polled shard's backend outcome, collected by
// pollRunning's worker pool before any Run mutation is applied.
type shardStatusResult struct {
	shard  *metaworkflow.ShardRecord
	result execbackend.StatusResult
	err    error
}

// pollRunning implements §4.7 step 2: every shard currently running is
// checked against the execution backend and its local status updated.
// Status queries are read-only against the backend, so they are fanned
// out across a bounded worker pool (statusConcurrency) and their results
// joined before any shard's Transition is applied sequentially — Run
// mutation itself is never done concurrently. A failed status query for
// a single shard is logged and that shard is left running for the next
// cycle rather than aborting the whole cycle.
func (rc *Reconciler) pollRunning(ctx context.Context, run *metaworkflow.Run, logger *slog.Logger) error {
	_, span := rc.startSpan(ctx, "reconcile.poll_status")
	defer span.End()

	var pending []*metaworkflow.ShardRecord
	for _, shard := range run.Shards {
		if shard.Status != metaworkflow.StatusRunning || shard.EngineJobID == "" {
			continue
		}
		pending = append(pending, shard)
	}
	if len(pending) == 0 {
		return nil
	}

	results := make([]shardStatusResult, len(pending))
	sem := make(chan struct{}, rc.statusConcurrency)
	var wg sync.WaitGroup
	wg.Add(len(pending))
	for i, shard := range pending {
		i, shard := i, shard
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			result, err := rc.backend.Status(ctx, shard.EngineJobID)
			results[i] = shardStatusResult{shard: shard, result: result, err: err}
		}()
	}
	wg.Wait()

	for _, sr := range results {
		shard := sr.shard
		shardLogger := log.WithShardContext(logger, run.ID, shard.StepName, shard.ShardCoord)

		if sr.err != nil {
			rc.recordBackendError("backend")
			shardLogger.Error("status query failed, leaving shard running for the next cycle", slog.String("error", sr.err.Error()))
			continue
		}

		newStatus := engineToCoreStatus(sr.result.Status)
		if newStatus == shard.Status {
			continue
		}

		if err := run.Transition(shard.ID(), newStatus, sr.result.OutputHandle); err != nil {
			shardLogger.Error("illegal shard transition observed from backend status", slog.String("error", err.Error()))
			continue
		}

		shardLogger.Info("shard transitioned", slog.String(log.EventKey, "reconcile.shard_transition"), slog.String("status", string(newStatus)))
		if rc.metrics != nil && isShardTerminal(newStatus) {
			rc.metrics.RecordShardComplete(ctx, shard.StepName, string(newStatus), 0)
		}
	}

	return nil
}

// submitReady implements §4.7 step 3: materialize and submit every ready
// shard, in Run Builder order, until maxSubmitPerCycle is reached.
func (rc *Reconciler) submitReady(ctx context.Context, run *metaworkflow.Run, def MetaWorkflowDefinition, shape metaworkflow.Shape, logger *slog.Logger) error {
	ready := run.Ready()
	if rc.metrics != nil {
		rc.metrics.SetReadyDepth(len(ready))
	}

	submitted := 0
	for _, shard := range ready {
		if rc.maxSubmitPerCycle > 0 && submitted >= rc.maxSubmitPerCycle {
			break
		}

		if err := rc.submitShard(ctx, run, def, shape, shard, logger); err != nil {
			return err
		}
		submitted++
	}

	return nil
}

func (rc *Reconciler) submitShard(ctx context.Context, run *metaworkflow.Run, def MetaWorkflowDefinition, shape metaworkflow.Shape, shard *metaworkflow.ShardRecord, logger *slog.Logger) error {
	_, span := rc.startSpan(ctx, "reconcile.submit_shard", attribute.String("step", shard.StepName), attribute.String("shard", shard.ShardCoord))
	defer span.End()

	shardLogger := log.WithShardContext(logger, run.ID, shard.StepName, shard.ShardCoord)

	step := def.MetaWorkflow.StepByName(shard.StepName)
	if step == nil {
		return mwferrors.Wrap(&metaworkflow.MissingDepError{Step: shard.StepName, Dep: "(undeclared on meta-workflow)"}, "resolving step for ready shard")
	}

	coord, err := metaworkflow.ParseCoordinate(shard.ShardCoord)
	if err != nil {
		return mwferrors.Wrap(err, "parsing shard coordinate")
	}

	args, err := metaworkflow.Materialize(def.MetaWorkflow, step, coord, shape, nil, shard.Dependencies, run.Input, metaworkflow.RunOutputLookup{Run: run})
	if err != nil {
		shardLogger.Error("materialization failed, marking shard failed", slog.String("error", err.Error()))
		_ = run.Transition(shard.ID(), metaworkflow.StatusFailed, "")
		return nil
	}

	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return mwferrors.Wrap(err, "encoding submitted argument list")
	}

	result, err := rc.backend.Submit(ctx, execbackend.SubmitRequest{
		RunID:      run.ID,
		StepName:   shard.StepName,
		ShardCoord: shard.ShardCoord,
		WorkflowID: step.UUID,
		Args:       encodedArgs,
	})
	if err != nil {
		rc.recordBackendError("backend")
		shardLogger.Error("submission failed, marking shard failed", slog.String("error", err.Error()))
		_ = run.Transition(shard.ID(), metaworkflow.StatusFailed, "")
		return nil
	}

	shard.EngineJobID = result.EngineJobID
	if err := run.Transition(shard.ID(), metaworkflow.StatusRunning, ""); err != nil {
		return mwferrors.Wrap(err, "transitioning submitted shard to running")
	}

	shardLogger.Info("shard submitted", slog.String(log.EventKey, "reconcile.shard_submitted"), slog.String("engine_job_id", result.EngineJobID))
	if rc.metrics != nil {
		rc.metrics.RecordSubmission(ctx, shard.StepName)
	}

	return nil
}

// primaryShape recomputes the Shape of the meta-workflow's designated
// primary FILE input from the run's frozen InputObject. Shape is not
// persisted on the Run document (only the materialized input block is);
// it is cheap to recompute every cycle and this keeps the Run document
// free of a derived, redundant field.
func (rc *Reconciler) primaryShape(run *metaworkflow.Run, def MetaWorkflowDefinition) (metaworkflow.Shape, error) {
	if def.PrimaryInput == "" {
		return metaworkflow.Shape{}, &mwferrors.ValidationError{Field: "primary_input", Message: "meta-workflow declares no primary_input"}
	}
	files, ok := run.Input.Files[def.PrimaryInput]
	if !ok {
		return metaworkflow.Shape{}, &metaworkflow.MissingInputError{Name: def.PrimaryInput}
	}
	return metaworkflow.AnalyzeShape(def.PrimaryInput, files)
}

func (rc *Reconciler) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if rc.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return rc.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (rc *Reconciler) recordBackendError(service string) {
	if rc.metrics != nil {
		rc.metrics.RecordBackendError(context.Background(), service)
	}
}

func isTerminal(s metaworkflow.Status) bool {
	switch s {
	case metaworkflow.StatusCompleted, metaworkflow.StatusFailed, metaworkflow.StatusStopped, metaworkflow.StatusQualityMetricFailed:
		return true
	default:
		return false
	}
}

func isShardTerminal(s metaworkflow.Status) bool {
	return s == metaworkflow.StatusCompleted || s == metaworkflow.StatusFailed
}

func toInterfaceSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}
