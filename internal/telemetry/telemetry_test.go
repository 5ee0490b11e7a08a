package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev := tracer
	tracer = tp.Tracer(ServiceName)
	t.Cleanup(func() { tracer = prev })
	return rec
}

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), ServiceName, "test", "")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if Tracer() == nil {
		t.Error("Tracer() should not be nil")
	}
}

func TestSpanAttributes(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "router.call_model")
	AddRequestAttributes(span, "u1", "explainer", "req-1")
	AddModelAttributes(span, "sys_gemini_flash", "gemini", "gemini-2.5-flash")
	AddFallbackAttribute(span, true)
	AddLatencyAttribute(span, 42)
	AddErrorAttribute(span, errors.New("boom"))

	if GetTraceID(ctx) == "" {
		t.Error("GetTraceID() should return the active trace id")
	}
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}

	if attrs["user.id"].AsString() != "u1" {
		t.Errorf("user.id = %v", attrs["user.id"])
	}
	if attrs["model_config.id"].AsString() != "sys_gemini_flash" {
		t.Errorf("model_config.id = %v", attrs["model_config.id"])
	}
	if !attrs["fallback.used"].AsBool() {
		t.Error("fallback.used should be true")
	}
	if attrs["latency.ms"].AsInt64() != 42 {
		t.Errorf("latency.ms = %v", attrs["latency.ms"])
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID() = %q, want empty", id)
	}
}
