package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureLog routes the default logger into a buffer for the test's
// duration.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// TestCorrelationID checks the empty default and the hex trace ID of an
// active span.
func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	tp, _ := newTestTracerProvider(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "analysis-run")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID is not lowercase hex: %q", cid)
	}
}

// TestStartSpan checks that StartSpan uses the global provider and names
// the span as given.
func TestStartSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "pipeline.run")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pipeline.run" {
		t.Errorf("recorded spans = %+v", spans)
	}
}

// TestLogger_TraceAttributes checks that the context logger carries
// trace_id and span_id inside a span and stays bare outside one.
func TestLogger_TraceAttributes(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	buf := captureLog(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	Logger(ctx).Info("inside span")
	span.End()

	if out := buf.String(); !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("span log missing trace attributes: %s", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("outside span")
	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Errorf("bare log must not carry trace_id: %s", out)
	}
}
