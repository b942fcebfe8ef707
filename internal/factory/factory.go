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

// Package factory implements the Run Factory (§4.8): the five-step
// bootstrap that turns a source entity and a meta-workflow id into a
// newly persisted, pending Run.
package factory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/adapter"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/reconcile"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/store"
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"

	"go.opentelemetry.io/otel/trace"
)

// runCollection is the store collection a newly created Run is POSTed
// into.
const runCollection = "meta_workflow_run"

// linkField is the source entity field patched to point back at a newly
// created Run.
const linkField = "meta_workflow_run"

// SamplesProvider is an optional capability an InputAdapter may implement
// to surface the sorted sample/pedigree view the Run document's
// input_samples field carries (populated by SampleProcessingAdapter;
// MapAdapter does not implement it, and the factory simply omits the
// field in that case).
type SamplesProvider interface {
	SortedSamplesAndPedigree(entity map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, error)
}

// Config assembles a Factory's collaborators.
type Config struct {
	Store  store.Client
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Factory builds and persists new Runs.
type Factory struct {
	store  store.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// New constructs a Factory from cfg.
func New(cfg Config) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{store: cfg.Store, logger: logger, tracer: cfg.Tracer}
}

// CreateRun implements §4.8's five steps: fetch source entity & meta-
// workflow, adapt the source entity into an InputObject, validate it
// against the meta-workflow's declared inputs, build the shard set, then
// persist the new Run and link the source entity back to it.
func (f *Factory) CreateRun(ctx context.Context, sourceEntityID, metaWorkflowID string, in adapter.InputAdapter) (*metaworkflow.Run, error) {
	ctx, span := f.startSpan(ctx, "factory.create_run")
	defer span.End()

	entity, err := f.store.GetItem(ctx, sourceEntityID)
	if err != nil {
		return nil, mwferrors.Wrap(err, "fetching source entity")
	}

	mwfDoc, err := f.store.GetItem(ctx, metaWorkflowID)
	if err != nil {
		return nil, mwferrors.Wrap(err, "fetching meta-workflow")
	}
	def, err := reconcile.DecodeMetaWorkflow(mwfDoc)
	if err != nil {
		return nil, mwferrors.Wrap(err, "decoding meta-workflow")
	}

	input, common, err := in.Adapt(entity)
	if err != nil {
		return nil, mwferrors.Wrap(err, "adapting source entity")
	}

	if err := f.validateInput(def.MetaWorkflow, input); err != nil {
		return nil, mwferrors.Wrap(err, "validating run input against meta-workflow declarations")
	}

	ordered, err := metaworkflow.Compile(def.MetaWorkflow, def.EndSteps)
	if err != nil {
		return nil, mwferrors.Wrap(err, "compiling meta-workflow DAG")
	}

	shape, err := primaryShape(def, input)
	if err != nil {
		return nil, mwferrors.Wrap(err, "analyzing primary input shape")
	}

	shards, err := metaworkflow.BuildRun(ordered, shape)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building run shard set")
	}

	run := &metaworkflow.Run{
		ID:             uuid.New().String(),
		MetaWorkflowID: metaWorkflowID,
		Input:          input,
		Shards:         shards,
		FinalStatus:    metaworkflow.StatusPending,
		SourceEntityID: sourceEntityID,
		Project:        common.Project,
		Institution:    common.Institution,
		Title:          common.Title,
		CommonFields:   make(map[string]interface{}),
	}

	var inputSamples []interface{}
	if provider, ok := in.(SamplesProvider); ok {
		samples, _, err := provider.SortedSamplesAndPedigree(entity)
		if err != nil {
			return nil, mwferrors.Wrap(err, "deriving input_samples")
		}
		inputSamples = make([]interface{}, len(samples))
		for i, s := range samples {
			inputSamples[i] = s
		}
	}

	doc := reconcile.EncodeRun(run, inputSamples)
	if _, err := f.store.Post(ctx, runCollection, doc); err != nil {
		return nil, mwferrors.Wrap(err, "persisting new run")
	}

	if err := f.store.Patch(ctx, sourceEntityID, map[string]interface{}{linkField: run.ID}); err != nil {
		return nil, mwferrors.Wrap(err, "linking source entity to new run")
	}

	f.logger.Info("run created",
		slog.String("run_id", run.ID),
		slog.String("meta_workflow", metaWorkflowID),
		slog.String("source_entity", sourceEntityID),
		slog.Int("shard_count", len(shards)),
	)

	return run, nil
}

// validateInput runs the Input Materializer once over all declared
// inputs, without a shard context, purely to surface ERR_MISSING_INPUT/ERR_SCHEMA
// at Run-creation time rather than letting a later reconciliation cycle
// discover a missing caller value. It synthesizes a step whose declared
// arguments are exactly the meta-workflow's InputDecls so Materialize can
// be reused unchanged for this seed-mode pass.
func (f *Factory) validateInput(mwf *metaworkflow.MetaWorkflow, input metaworkflow.InputObject) error {
	seed := &metaworkflow.Step{Name: "(run input)"}
	for _, decl := range mwf.InputDecls {
		seed.DeclaredArgs = append(seed.DeclaredArgs, metaworkflow.Argument{Name: decl.Name})
	}

	_, err := metaworkflow.Materialize(mwf, seed, nil, metaworkflow.Shape{}, nil, nil, input, nil)
	return err
}

// primaryShape computes the Shape of the meta-workflow's designated
// primary FILE input from the adapted InputObject.
func primaryShape(def reconcile.MetaWorkflowDefinition, input metaworkflow.InputObject) (metaworkflow.Shape, error) {
	if def.PrimaryInput == "" {
		return metaworkflow.Shape{}, &mwferrors.ValidationError{Field: "primary_input", Message: "meta-workflow declares no primary_input"}
	}
	files, ok := input.Files[def.PrimaryInput]
	if !ok {
		return metaworkflow.Shape{}, &metaworkflow.MissingInputError{Name: def.PrimaryInput}
	}
	return metaworkflow.AnalyzeShape(def.PrimaryInput, files)
}

func (f *Factory) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if f.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return f.tracer.Start(ctx, name)
}
