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

package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the OpenTelemetry SDK's tracer and meter providers, plus the
// Prometheus metrics collector fed from reconciliation cycles.
type Provider struct {
	tp               *sdktrace.TracerProvider
	mp               *metric.MeterProvider
	promExporter     *prometheus.Exporter
	metricsCollector *MetricsCollector
}

// NewProviderWithConfig creates a Provider configured from a Config, applying
// the configured sampler before any caller-supplied TracerProviderOptions.
func NewProviderWithConfig(cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	sampler := NewSampler(SamplerConfig{
		Enabled:            cfg.Sampling.Enabled,
		Rate:               cfg.Sampling.Rate,
		AlwaysSampleErrors: cfg.Sampling.AlwaysSampleErrors,
	})

	allOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
	}

	if cfg.OTLPEndpoint != "" {
		batcherOpts := []sdktrace.BatchSpanProcessorOption{}
		if cfg.BatchSize > 0 {
			batcherOpts = append(batcherOpts, sdktrace.WithMaxExportBatchSize(cfg.BatchSize))
		}
		if cfg.BatchInterval > 0 {
			batcherOpts = append(batcherOpts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
		}

		exporter, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("building OTLP span exporter: %w", err)
		}
		allOpts = append(allOpts, sdktrace.WithBatcher(exporter, batcherOpts...))
	}

	allOpts = append(allOpts, opts...)

	return NewProvider(cfg.ServiceName, cfg.ServiceVersion, allOpts...)
}

// NewProvider creates a new OpenTelemetry-based tracer and meter provider.
func NewProvider(serviceName, version string, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL to avoid conflicts when merging with the default resource
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	allOpts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}, opts...)

	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	metricsCollector, err := NewMetricsCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return &Provider{
		tp:               tp,
		mp:               mp,
		promExporter:     promExporter,
		metricsCollector: metricsCollector,
	}, nil
}

// Tracer returns an OpenTelemetry tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes any pending spans/metrics and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.Shutdown(ctx)
	}
	return nil
}

// ForceFlush exports all pending spans and metrics synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.ForceFlush(ctx)
	}
	return nil
}

// MetricsCollector returns the collector for recording reconciliation metrics.
func (p *Provider) MetricsCollector() *MetricsCollector {
	return p.metricsCollector
}

// MetricsHandler returns an HTTP handler serving the Prometheus metrics
// endpoint. The OpenTelemetry Prometheus exporter registers with the default
// Prometheus registry, so promhttp.Handler() picks it up directly.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
