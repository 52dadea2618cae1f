package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit()
		}
	}
	return ""
}

func TestBridgeSpanLifecycle(t *testing.T) {
	rec, tp := newRecorder(t)
	tracer := Tracer(tp)

	ctx, span := StartBridgeSpan(context.Background(), tracer, "sess-1", "127.0.0.1:4000")
	_, upSpan := StartUpstreamSpan(ctx, tracer, "gemini", "gemini-2.0-flash-exp")
	EndSpan(upSpan, "", nil)

	RecordPumpExit(ctx, "inbound", "normal_close", nil)
	RecordTurnComplete(ctx, 3)
	EndSpan(span, "normal_close", nil)

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}

	up, root := ended[0], ended[1]
	if up.Name() != SpanUpstreamConnect || root.Name() != SpanBridge {
		t.Fatalf("unexpected span names %q, %q", up.Name(), root.Name())
	}
	if up.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("expected upstream span to be a child of the bridge span")
	}
	if got := attrValue(root.Attributes(), "session.id"); got != "sess-1" {
		t.Errorf("session.id = %q", got)
	}
	if got := attrValue(root.Attributes(), "livebridge.status"); got != "normal_close" {
		t.Errorf("livebridge.status = %q", got)
	}
	if got := attrValue(up.Attributes(), "gen_ai.request.model"); got != "gemini-2.0-flash-exp" {
		t.Errorf("gen_ai.request.model = %q", got)
	}

	events := root.Events()
	if len(events) != 2 || events[0].Name != "pump.exit" || events[1].Name != "turn.complete" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEndSpan_ErrorIsRedacted(t *testing.T) {
	rec, tp := newRecorder(t)

	_, span := StartBridgeSpan(context.Background(), Tracer(tp), "sess-2", "")
	EndSpan(span, "upstream_error", errors.New("dial wss://host/ws?key=supersecretvalue failed"))

	got := rec.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status().Code)
	}
	if got.Status().Description == "" || strings.Contains(got.Status().Description, "supersecretvalue") {
		t.Errorf("expected redacted status description, got %q", got.Status().Description)
	}
}
