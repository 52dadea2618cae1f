package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
)

type bridgeRun struct {
	res *Result
	err error
}

func startBridge(b *Bridge) <-chan bridgeRun {
	done := make(chan bridgeRun, 1)
	go func() {
		res, err := b.Run(context.Background())
		done <- bridgeRun{res, err}
	}()
	return done
}

func awaitRun(t *testing.T, done <-chan bridgeRun) bridgeRun {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not finish")
		return bridgeRun{}
	}
}

func TestBridge_HandshakeBuildsSessionConfig(t *testing.T) {
	conn := newFakeConn()
	session := newFakeSession()
	dialer := &fakeDialer{session: session}
	b := NewBridge(conn, dialer, fastConfig(), WithSessionID("sess-1"))
	assert.Equal(t, "sess-1", b.SessionID())

	conn.send(`{"setup":{"generation_config":{"response_modalities":["AUDIO"]},"system_instruction":"be rude","model":"other"}}`)
	done := startBridge(b)

	conn.send(envelope(mediaChunk{MIMEType: MIMEAudioPCM, Data: "QUJD"}))
	require.True(t, waitFor(session.sentCh, 1, time.Second))
	conn.hangUp()

	run := awaitRun(t, done)
	require.NoError(t, run.err)
	assert.Equal(t, "sess-1", run.res.SessionID)
	assert.Equal(t, OutcomeNormalClose.String(), run.res.Status)

	cfgs := dialer.configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, "test-model", cfgs[0].Model)
	assert.Equal(t, "be brief", cfgs[0].SystemInstruction)
	_, hasInstruction := cfgs[0].Option("system_instruction")
	assert.False(t, hasInstruction)
	gen, ok := cfgs[0].Option("generation_config")
	require.True(t, ok)
	assert.Equal(t, []any{"AUDIO"}, gen.(map[string]any)["response_modalities"])
}

func TestBridge_MissingSetupUsesEmptyOptions(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{session: newFakeSession()}
	conn.send(`{"hello":"there"}`)
	conn.hangUp()

	run := awaitRun(t, startBridge(NewBridge(conn, dialer, fastConfig())))
	require.NoError(t, run.err)

	cfgs := dialer.configs()
	require.Len(t, cfgs, 1)
	assert.Empty(t, cfgs[0].Options())
}

func TestBridge_HandshakeErrors(t *testing.T) {
	tests := []struct {
		name  string
		first string
	}{
		{"invalid json", `{"setup":`},
		{"not an object", `null`},
		{"setup is a list", `{"setup":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			dialer := &fakeDialer{session: newFakeSession()}
			obs := newCountingObserver()
			conn.send(tt.first)

			run := awaitRun(t, startBridge(NewBridge(conn, dialer, fastConfig(), WithObserver(obs))))
			assert.ErrorIs(t, run.err, pkgerrors.ErrHandshake)
			assert.Equal(t, StatusHandshakeError, run.res.Status)
			assert.Empty(t, dialer.configs())
			assert.EqualValues(t, 1, conn.closes.Load())
			assert.Equal(t, []string{StatusHandshakeError}, obs.snapshot().finished)
		})
	}
}

func TestBridge_HandshakeTimeout(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{session: newFakeSession()}
	cfg := fastConfig()
	cfg.HandshakeTimeout = 20 * time.Millisecond

	run := awaitRun(t, startBridge(NewBridge(conn, dialer, cfg)))
	assert.ErrorIs(t, run.err, pkgerrors.ErrHandshake)
	assert.ErrorIs(t, run.err, context.DeadlineExceeded)
	assert.Equal(t, StatusHandshakeError, run.res.Status)
	assert.Empty(t, dialer.configs())
}

func TestBridge_HandshakeClientGone(t *testing.T) {
	conn := newFakeConn()
	conn.hangUp()

	run := awaitRun(t, startBridge(NewBridge(conn, &fakeDialer{}, fastConfig())))
	assert.ErrorIs(t, run.err, pkgerrors.ErrHandshake)
	assert.ErrorIs(t, run.err, ErrClientClosed)
}

func TestBridge_ConnectError(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{err: errors.New("dial tcp: connection refused")}
	conn.send(`{"setup":{}}`)

	run := awaitRun(t, startBridge(NewBridge(conn, dialer, fastConfig())))
	assert.ErrorIs(t, run.err, pkgerrors.ErrUpstreamConnect)
	assert.Contains(t, run.err.Error(), "connection refused")
	assert.Equal(t, StatusConnectError, run.res.Status)
	assert.EqualValues(t, 1, conn.closes.Load())
}

func TestBridge_ConnectTimeout(t *testing.T) {
	conn := newFakeConn()
	cfg := fastConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	conn.send(`{"setup":{}}`)

	run := awaitRun(t, startBridge(NewBridge(conn, &fakeDialer{block: true}, cfg)))
	assert.ErrorIs(t, run.err, pkgerrors.ErrUpstreamConnect)
	assert.ErrorIs(t, run.err, context.DeadlineExceeded)
}

func TestBridge_ClientCloseWhileIdleClosesSessionOnce(t *testing.T) {
	conn := newFakeConn()
	session := newFakeSession()
	obs := newCountingObserver()
	conn.send(`{"setup":{}}`)
	done := startBridge(NewBridge(conn, &fakeDialer{session: session}, fastConfig(), WithObserver(obs)))

	// Finish one turn so the outbound pump is idle between turns.
	session.emit(textEvent("hi"), turnComplete())
	require.True(t, waitFor(conn.wrote, 1, time.Second))
	conn.hangUp()

	run := awaitRun(t, done)
	require.NoError(t, run.err)
	assert.Equal(t, OutcomeNormalClose, run.res.Inbound.Outcome)
	assert.Equal(t, OutcomeCanceled, run.res.Outbound.Outcome)
	assert.EqualValues(t, 1, session.closes.Load())
	assert.EqualValues(t, 1, conn.closes.Load())

	counts := obs.snapshot()
	assert.ElementsMatch(t, []string{"inbound:normal_close", "outbound:canceled"}, counts.exits)
	assert.Equal(t, []string{"normal_close"}, counts.finished)
}

func TestBridge_UpstreamFailureStopsInbound(t *testing.T) {
	conn := newFakeConn()
	session := newFakeSession()
	cfg := fastConfig()
	cfg.MaxReceiveRetries = -1
	conn.send(`{"setup":{}}`)
	done := startBridge(NewBridge(conn, &fakeDialer{session: session}, cfg))

	session.fail(errors.New("stream reset"))

	run := awaitRun(t, done)
	assert.ErrorIs(t, run.err, pkgerrors.ErrReceive)
	assert.Equal(t, OutcomeUpstreamError.String(), run.res.Status)
	assert.Equal(t, OutcomeCanceled, run.res.Inbound.Outcome)
	assert.EqualValues(t, 1, session.closes.Load())
	assert.EqualValues(t, 1, conn.closes.Load())
}

func TestBridge_RelaysBothDirections(t *testing.T) {
	conn := newFakeConn()
	session := newFakeSession()
	conn.send(`{"setup":{"generation_config":{}}}`)
	done := startBridge(NewBridge(conn, &fakeDialer{session: session}, fastConfig()))

	conn.send(envelope(mediaChunk{MIMEType: MIMEImageJPEG, Data: "/9j/"}))
	session.emit(textEvent("I see a cat"), turnComplete())

	require.True(t, waitFor(session.sentCh, 1, time.Second))
	require.True(t, waitFor(conn.wrote, 1, time.Second))
	conn.hangUp()
	awaitRun(t, done)

	assert.Equal(t, FragmentImage, session.fragments()[0].Kind)
	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(conn.messages()[0]), &msg))
	assert.Equal(t, "I see a cat", msg["text"])
}

func TestBridge_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	conn := newFakeConn()
	conn.send(`{"setup":{}}`)
	conn.hangUp()
	b := NewBridge(conn, &fakeDialer{session: newFakeSession()}, fastConfig(),
		WithTracer(telemetry.Tracer(tp)), WithSessionID("traced"), WithProvider("gemini"))
	awaitRun(t, startBridge(b))

	names := map[string]bool{}
	for _, s := range rec.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names[telemetry.SpanBridge])
	assert.True(t, names[telemetry.SpanUpstreamConnect])
}
