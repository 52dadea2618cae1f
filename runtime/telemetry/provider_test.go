package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracer_NilProvider(t *testing.T) {
	if Tracer(nil) == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestTracer_WithProvider(t *testing.T) {
	if Tracer(noop.NewTracerProvider()) == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestSetupPropagation(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)

	SetupPropagation()

	found := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		found[f] = true
	}
	for _, want := range []string{"traceparent", "baggage", "X-Amzn-Trace-Id"} {
		if !found[want] {
			t.Errorf("expected propagator to handle %q, got fields: %v", want, found)
		}
	}
}

func TestSetup_NoEndpoint(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	origTP := otel.GetTracerProvider()
	defer func() {
		otel.SetTextMapPropagator(orig)
		otel.SetTracerProvider(origTP)
	}()

	shutdown, err := Setup(context.Background(), "", "livebridge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != origTP {
		t.Error("expected tracer provider to be left alone without an endpoint")
	}
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(t.Context(), "http://localhost:0/v1/traces", "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tp.Shutdown(t.Context()) }()

	var _ trace.TracerProvider = tp
}
