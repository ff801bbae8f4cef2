// Package observe provides application-wide observability primitives for
// kgweave: OpenTelemetry metrics, distributed tracing, and structured
// logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kgweave metrics.
const meterName = "github.com/kgweave/kgweave"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Operation dispatcher ---

	// OperationDuration tracks dispatcher latency per named operation. Use
	// with attribute: attribute.String("operation", ...).
	OperationDuration metric.Float64Histogram

	// OperationCount counts dispatcher invocations. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	OperationCount metric.Int64Counter

	// OperationErrors counts dispatcher failures. Use with attribute:
	//   attribute.String("operation", ...)
	OperationErrors metric.Int64Counter

	// --- Pipeline stage latency histograms ---

	// DecomposeDuration tracks decomposition latency (LLM extraction or
	// deterministic fallback).
	DecomposeDuration metric.Float64Histogram

	// HydeDuration tracks HyDE hypothesis generation latency.
	HydeDuration metric.Float64Histogram

	// EnrichDuration tracks the embedding enrichment pipeline latency.
	EnrichDuration metric.Float64Histogram

	// SearchDuration tracks dual-search query latency.
	SearchDuration metric.Float64Histogram

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Graph and index gauges ---

	// GraphNodes tracks the number of RDF elements currently held in the
	// active dataset, by node kind. Use with attribute:
	//   attribute.String("kind", ...)
	GraphNodes metric.Int64UpDownCounter

	// VectorIndexSize tracks the number of vectors currently held in the
	// active index.
	VectorIndexSize metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// pipeline and dispatcher latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.OperationDuration, err = m.Float64Histogram("kgweave.operation.duration",
		metric.WithDescription("Latency of dispatched operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OperationCount, err = m.Int64Counter("kgweave.operation.count",
		metric.WithDescription("Total dispatched operations by name and status."),
	); err != nil {
		return nil, err
	}
	if met.OperationErrors, err = m.Int64Counter("kgweave.operation.errors",
		metric.WithDescription("Total dispatched operation failures by name."),
	); err != nil {
		return nil, err
	}

	if met.DecomposeDuration, err = m.Float64Histogram("kgweave.decompose.duration",
		metric.WithDescription("Latency of unit decomposition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HydeDuration, err = m.Float64Histogram("kgweave.hyde.duration",
		metric.WithDescription("Latency of HyDE hypothesis generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnrichDuration, err = m.Float64Histogram("kgweave.enrich.duration",
		metric.WithDescription("Latency of the embedding enrichment pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("kgweave.search.duration",
		metric.WithDescription("Latency of dual-search queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("kgweave.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("kgweave.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.GraphNodes, err = m.Int64UpDownCounter("kgweave.graph.nodes",
		metric.WithDescription("Number of RDF elements held in the active dataset, by kind."),
	); err != nil {
		return nil, err
	}
	if met.VectorIndexSize, err = m.Int64UpDownCounter("kgweave.vector.index_size",
		metric.WithDescription("Number of vectors held in the active index."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordOperation is a convenience method that records an operation's
// duration and status in a single call.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, seconds float64) {
	m.OperationDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("operation", operation)))
	m.OperationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
	if status != "ok" {
		m.OperationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
