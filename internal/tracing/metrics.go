package tracing

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunCounter provides in-memory run count metrics.
type RunCounter interface {
	RunCount() int
}

// MetricsCollector collects Prometheus-compatible metrics for the reconciler.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	runsTotal   metric.Int64Counter
	shardsTotal metric.Int64Counter
	submitTotal metric.Int64Counter
	backendErrs metric.Int64Counter

	// Histograms
	runDuration   metric.Float64Histogram
	shardDuration metric.Float64Histogram
	cycleDuration metric.Float64Histogram

	activeRuns   map[string]bool
	activeRunsMu sync.RWMutex
	readyDepth   int64
	readyDepthMu sync.RWMutex

	runCounter   RunCounter
	runCounterMu sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("mwfctl")

	mc := &MetricsCollector{
		meter:      meter,
		activeRuns: make(map[string]bool),
	}

	var err error

	mc.runsTotal, err = meter.Int64Counter(
		"mwfctl_runs_total",
		metric.WithDescription("Total number of meta-workflow runs reconciled"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.shardsTotal, err = meter.Int64Counter(
		"mwfctl_shards_total",
		metric.WithDescription("Total number of shards that reached a terminal status"),
		metric.WithUnit("{shard}"),
	)
	if err != nil {
		return nil, err
	}

	mc.submitTotal, err = meter.Int64Counter(
		"mwfctl_shard_submissions_total",
		metric.WithDescription("Total number of shard submissions sent to the execution backend"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	mc.backendErrs, err = meter.Int64Counter(
		"mwfctl_backend_errors_total",
		metric.WithDescription("Total number of execution backend or store I/O errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"mwfctl_run_duration_seconds",
		metric.WithDescription("Run wall-clock duration in seconds, from first submission to final status"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.shardDuration, err = meter.Float64Histogram(
		"mwfctl_shard_duration_seconds",
		metric.WithDescription("Shard wall-clock duration in seconds, from submission to terminal status"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.cycleDuration, err = meter.Float64Histogram(
		"mwfctl_reconcile_cycle_duration_seconds",
		metric.WithDescription("Duration of a single reconciliation cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mwfctl_active_runs",
		metric.WithDescription("Number of runs currently being reconciled"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.activeRunsMu.RLock()
			count := len(mc.activeRuns)
			mc.activeRunsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mwfctl_ready_shards",
		metric.WithDescription("Number of shards currently ready for submission across all active runs"),
		metric.WithUnit("{shard}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.readyDepthMu.RLock()
			depth := mc.readyDepth
			mc.readyDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mwfctl_runs_in_memory",
		metric.WithDescription("Number of runs held in the in-memory backend"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.runCounterMu.RLock()
			counter := mc.runCounter
			mc.runCounterMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.RunCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mwfctl_goroutines",
		metric.WithDescription("Number of active goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordRunStart records a run entering active reconciliation.
func (mc *MetricsCollector) RecordRunStart(ctx context.Context, runID string) {
	mc.activeRunsMu.Lock()
	mc.activeRuns[runID] = true
	mc.activeRunsMu.Unlock()
}

// RecordRunComplete records a run reaching a final status.
func (mc *MetricsCollector) RecordRunComplete(ctx context.Context, runID, metaWorkflowID, status string, duration time.Duration) {
	mc.activeRunsMu.Lock()
	delete(mc.activeRuns, runID)
	mc.activeRunsMu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("meta_workflow", metaWorkflowID),
		attribute.String("status", status),
	}

	mc.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordShardComplete records a shard reaching a terminal status.
func (mc *MetricsCollector) RecordShardComplete(ctx context.Context, stepName, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("step", stepName),
		attribute.String("status", status),
	}

	mc.shardsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.shardDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSubmission records a single shard submission to the execution backend.
func (mc *MetricsCollector) RecordSubmission(ctx context.Context, stepName string) {
	mc.submitTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step", stepName)))
}

// RecordBackendError records a store or execution-backend I/O failure.
func (mc *MetricsCollector) RecordBackendError(ctx context.Context, service string) {
	mc.backendErrs.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

// RecordCycle records the wall-clock duration of one reconciliation cycle.
func (mc *MetricsCollector) RecordCycle(ctx context.Context, duration time.Duration) {
	mc.cycleDuration.Record(ctx, duration.Seconds())
}

// SetReadyDepth sets the number of shards currently ready for submission.
func (mc *MetricsCollector) SetReadyDepth(n int) {
	mc.readyDepthMu.Lock()
	mc.readyDepth = int64(n)
	mc.readyDepthMu.Unlock()
}

// SetRunCounter sets the run counter for memory metrics.
func (mc *MetricsCollector) SetRunCounter(counter RunCounter) {
	mc.runCounterMu.Lock()
	mc.runCounter = counter
	mc.runCounterMu.Unlock()
}
