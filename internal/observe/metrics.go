// Package observe provides application-wide observability primitives for
// Echolot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Echolot metrics.
const meterName = "github.com/echolotlabs/echolot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// RunDuration tracks end-to-end pipeline run latency.
	RunDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// AnalysisRequests counts analysis operations. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("feature", ...), attribute.String("status", ...)
	AnalysisRequests metric.Int64Counter

	// AnalysisErrors counts analysis failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("feature", ...)
	AnalysisErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of pipeline runs currently in flight.
	ActiveRuns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// buckets are generous because local model inference on consumer hardware
// routinely takes tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("echolot.pipeline.stage.duration",
		metric.WithDescription("Latency of one pipeline stage by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("echolot.pipeline.run.duration",
		metric.WithDescription("End-to-end pipeline run latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("echolot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AnalysisRequests, err = m.Int64Counter("echolot.analysis.requests",
		metric.WithDescription("Total analysis operations by provider, feature, and status."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisErrors, err = m.Int64Counter("echolot.analysis.errors",
		metric.WithDescription("Total analysis failures by provider and feature."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("echolot.pipeline.active_runs",
		metric.WithDescription("Number of pipeline runs currently in flight."),
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

// RecordStage is a convenience method that records one stage duration.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordAnalysis is a convenience method that records an analysis request
// counter increment with the standard attribute set.
func (m *Metrics) RecordAnalysis(ctx context.Context, provider, feature, status string) {
	m.AnalysisRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("feature", feature),
			attribute.String("status", status),
		),
	)
}

// RecordAnalysisError is a convenience method that records an analysis error
// counter increment.
func (m *Metrics) RecordAnalysisError(ctx context.Context, provider, feature string) {
	m.AnalysisErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("feature", feature),
		),
	)
}
