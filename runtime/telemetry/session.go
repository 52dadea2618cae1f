package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/livebridge/runtime/logger"
)

// Span names.
const (
	SpanBridge          = "livebridge.session"
	SpanUpstreamConnect = "livebridge.upstream.connect"
)

// StartBridgeSpan starts the root span for one client connection.
func StartBridgeSpan(ctx context.Context, tracer trace.Tracer, sessionID, remoteAddr string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanBridge,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("client.address", remoteAddr),
		),
	)
}

// StartUpstreamSpan starts a client span around opening the upstream session.
func StartUpstreamSpan(ctx context.Context, tracer trace.Tracer, provider, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanUpstreamConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
		),
	)
}

// EndSpan records err (if any) and the final status label, then ends the span.
func EndSpan(span trace.Span, status string, err error) {
	if status != "" {
		span.SetAttributes(attribute.String("livebridge.status", status))
	}
	if err != nil {
		msg := logger.RedactSensitiveData(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordPumpExit adds a pump-exit event to the span carried by ctx.
func RecordPumpExit(ctx context.Context, pump, outcome string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("pump", pump),
		attribute.String("outcome", outcome),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", logger.RedactSensitiveData(err.Error())))
	}
	trace.SpanFromContext(ctx).AddEvent("pump.exit", trace.WithAttributes(attrs...))
}

// RecordTurnComplete adds a turn-complete event to the span carried by ctx.
func RecordTurnComplete(ctx context.Context, responses int) {
	trace.SpanFromContext(ctx).AddEvent("turn.complete",
		trace.WithAttributes(attribute.Int("responses", responses)))
}
