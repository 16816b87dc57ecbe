package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics wires a Metrics instance to a ManualReader so tests can
// collect and inspect recorded data points directly.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// findMetric locates a metric by name in collected data, or returns nil.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue collects from reader and returns the int64 sum data point of the
// named counter whose attributes include want (nil matches any point).
func sumValue(t *testing.T, reader *sdkmetric.ManualReader, name string, want map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}

points:
	for _, dp := range sum.DataPoints {
		for k, v := range want {
			got, _ := dp.Attributes.Value(attribute.Key(k))
			if got.AsString() != v {
				continue points
			}
		}
		return dp.Value
	}
	t.Fatalf("metric %q has no data point matching %v", name, want)
	return 0
}

// histCount collects from reader and returns the sample count of the named
// histogram's first data point.
func histCount(t *testing.T, reader *sdkmetric.ManualReader, name string) uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a float64 histogram", name)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatalf("metric %q has no data points", name)
	}
	return hist.DataPoints[0].Count
}

// TestRecordStage checks that the per-stage histogram collects samples under
// its instrument name.
func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribe", 12.5)
	m.RecordStage(ctx, "transcribe", 0.2)

	if got := histCount(t, reader, "echolot.pipeline.stage.duration"); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

// TestRunDuration checks the end-to-end run histogram.
func TestRunDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RunDuration.Record(context.Background(), 45.0)

	if got := histCount(t, reader, "echolot.pipeline.run.duration"); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

// TestRecordAnalysis checks that request counts split by status attribute.
func TestRecordAnalysis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, "ollama", "emotion", "ok")
	m.RecordAnalysis(ctx, "ollama", "emotion", "ok")
	m.RecordAnalysis(ctx, "ollama", "emotion", "error")

	got := sumValue(t, reader, "echolot.analysis.requests", map[string]string{
		"provider": "ollama",
		"feature":  "emotion",
		"status":   "ok",
	})
	if got != 2 {
		t.Errorf("ok count = %d, want 2", got)
	}
}

// TestRecordAnalysisError checks the failure counter attributes.
func TestRecordAnalysisError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordAnalysisError(context.Background(), "openai", "tone")

	got := sumValue(t, reader, "echolot.analysis.errors", map[string]string{
		"provider": "openai",
		"feature":  "tone",
	})
	if got != 1 {
		t.Errorf("error count = %d, want 1", got)
	}
}

// TestActiveRuns checks that the in-flight gauge nets out adds and removes.
func TestActiveRuns(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRuns.Add(ctx, 1)
	m.ActiveRuns.Add(ctx, 1)
	m.ActiveRuns.Add(ctx, -1)

	if got := sumValue(t, reader, "echolot.pipeline.active_runs", nil); got != 1 {
		t.Errorf("in-flight = %d, want 1", got)
	}
}

// TestHTTPRequestDuration checks the middleware's histogram records with
// method and path attributes.
func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.HTTPRequestDuration.Record(context.Background(), 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	if got := histCount(t, reader, "echolot.http.request.duration"); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

// TestDefaultMetrics checks that the package-level instance is a singleton.
func TestDefaultMetrics(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
