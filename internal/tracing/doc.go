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

/*
Package tracing provides distributed tracing and observability for the
reconciliation loop.

This package implements OpenTelemetry-based tracing for reconciliation
cycles, shard submissions, and store/backend HTTP requests. It also provides
Prometheus metrics collection and correlation ID propagation for distributed
debugging.

# Overview

The tracing package supports:

  - Distributed tracing via OpenTelemetry
  - Prometheus metrics export
  - Correlation ID propagation across services
  - Reconciliation cycle and shard submission span creation

# Quick Start

Create an OTel provider:

	cfg := tracing.Config{
	    Enabled:        true,
	    ServiceName:    "mwfctl",
	    ServiceVersion: "1.0.0",
	    Sampling: tracing.SamplingConfig{
	        Enabled: true,
	        Rate:    0.1, // 10% sampling
	    },
	}

	provider, err := tracing.NewProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("reconcile")

	ctx, span := tracer.Start(ctx, "reconcile.cycle",
	    trace.WithAttributes(
	        attribute.String("run.id", runID),
	    ),
	)
	defer span.End()

# Correlation IDs

Correlation IDs link requests across service boundaries:

	// In HTTP middleware
	correlationID := tracing.FromContext(ctx)

	// Add to outbound requests
	req.Header.Set("X-Correlation-ID", string(correlationID))

	// Middleware extracts and injects
	handler = tracing.CorrelationMiddleware(handler)

# Metrics Collection

Prometheus metrics are collected:

	// Get metrics collector
	collector := provider.MetricsCollector()

	// Record events
	collector.RecordRunStart(ctx, runID)
	collector.RecordRunComplete(ctx, runID, metaWorkflowID, "completed", duration)

Metrics exposed at /metrics:

  - mwfctl_runs_total{meta_workflow,status}
  - mwfctl_run_duration_seconds{meta_workflow,status}
  - mwfctl_shards_total{step,status}
  - mwfctl_shard_submissions_total{step}
  - mwfctl_backend_errors_total{service}

# Configuration

Full configuration options:

	tracing:
	  enabled: true
	  service_name: mwfctl
	  sampling:
	    enabled: true
	    type: head
	    rate: 0.1
	    always_sample_errors: true
	  otlp_endpoint: localhost:4317
	  redaction:
	    level: standard
	    patterns:
	      - name: api_key
	        regex: "sk-[a-zA-Z0-9]+"
	        replacement: "[REDACTED]"

# Key Components

  - Provider: OpenTelemetry SDK wrapper
  - MetricsCollector: Prometheus metrics recording
  - CorrelationID: Request correlation across services
  - Sampler: Configurable trace sampling

# Subpackages

  - redact: Credential and secret redaction for logged/traced values
*/
package tracing
