package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
)

// Bridge owns one client connection and the upstream session opened for it.
type Bridge struct {
	conn     ClientConn
	dialer   UpstreamDialer
	cfg      Config
	observer Observer
	tracer   trace.Tracer

	sessionID  string
	remoteAddr string
	provider   string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithRemoteAddr records the client address in logs and spans.
func WithRemoteAddr(addr string) Option {
	return func(b *Bridge) { b.remoteAddr = addr }
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(b *Bridge) {
		if id != "" {
			b.sessionID = id
		}
	}
}

// WithProvider names the upstream provider in logs and spans.
func WithProvider(name string) Option {
	return func(b *Bridge) { b.provider = name }
}

// NewBridge creates a bridge for an accepted client connection.
func NewBridge(conn ClientConn, dialer UpstreamDialer, cfg Config, opts ...Option) *Bridge {
	cfg.defaults()
	b := &Bridge{
		conn:      conn,
		dialer:    dialer,
		cfg:       cfg,
		observer:  NopObserver{},
		tracer:    telemetry.Tracer(otel.GetTracerProvider()),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionID returns the identifier used in this bridge's logs and spans.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Run performs the handshake, opens the upstream session and relays until
// either side stops. The client connection and the upstream session are
// closed before Run returns. The returned error is nil when the client
// closed cleanly.
func (b *Bridge) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx = logger.WithLoggingContext(ctx, &logger.LoggingFields{
		SessionID:  b.sessionID,
		RemoteAddr: b.remoteAddr,
		Provider:   b.provider,
		Model:      b.cfg.Model,
	})
	ctx, span := telemetry.StartBridgeSpan(ctx, b.tracer, b.sessionID, b.remoteAddr)

	b.observer.BridgeStarted()
	logger.InfoContext(ctx, "client connected")

	res, err := b.run(ctx)
	res.SessionID = b.sessionID
	res.Duration = time.Since(start)

	b.observer.BridgeFinished(res.Status, res.Duration)
	telemetry.EndSpan(span, res.Status, err)
	logger.InfoContext(ctx, "bridge finished", "status", res.Status, "duration", res.Duration)
	return res, err
}

func (b *Bridge) run(ctx context.Context) (*Result, error) {
	sc, err := b.handshake(ctx)
	if err != nil {
		_ = b.conn.Close()
		logger.WarnContext(ctx, "handshake failed", "error", err)
		return &Result{Status: StatusHandshakeError}, err
	}

	session, err := b.dial(ctx, sc)
	if err != nil {
		_ = b.conn.Close()
		logger.ErrorContext(ctx, "upstream connect failed", "error", logger.RedactSensitiveData(err.Error()))
		return &Result{Status: StatusConnectError}, err
	}

	return b.relay(ctx, session)
}

// handshake reads the client's first message and builds the session config.
func (b *Bridge) handshake(ctx context.Context) (SessionConfig, error) {
	hctx, cancel := context.WithTimeout(ctx, b.cfg.HandshakeTimeout)
	defer cancel()

	data, err := b.conn.ReadMessage(hctx)
	if err != nil {
		return SessionConfig{}, pkgerrors.NewKind("bridge", "handshake", pkgerrors.ErrHandshake, err)
	}

	setup, ok, err := parseSetup(data)
	if err != nil {
		return SessionConfig{}, pkgerrors.NewKind("bridge", "handshake", pkgerrors.ErrHandshake, err)
	}
	if !ok {
		logger.WarnContext(ctx, "first client message has no setup; using empty options")
	}
	if _, clientModel := setup["model"]; clientModel {
		logger.DebugContext(ctx, "ignoring client-provided model", "model", b.cfg.Model)
	}
	return NewSessionConfig(b.cfg.Model, b.cfg.SystemInstruction, setup), nil
}

func (b *Bridge) dial(ctx context.Context, sc SessionConfig) (UpstreamSession, error) {
	dctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()
	dctx, span := telemetry.StartUpstreamSpan(dctx, b.tracer, b.provider, sc.Model)

	start := time.Now()
	session, err := b.dialer.Dial(dctx, sc)
	elapsed := time.Since(start)
	b.observer.UpstreamConnected(err, elapsed)

	if err != nil {
		err = pkgerrors.NewKind("bridge", "connect upstream", pkgerrors.ErrUpstreamConnect, err)
		telemetry.EndSpan(span, StatusConnectError, err)
		return nil, err
	}
	telemetry.EndSpan(span, "", nil)
	logger.InfoContext(ctx, "upstream session opened", "elapsed", elapsed)
	return session, nil
}

// relay runs both pumps. The first pump to exit cancels the other and
// closes the upstream session; the client connection is closed after both
// have returned.
func (b *Bridge) relay(ctx context.Context, session UpstreamSession) (*Result, error) {
	pctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	closeSession := sync.OnceValue(session.Close)
	stop := context.AfterFunc(pctx, func() { _ = closeSession() })
	defer stop()

	var (
		once  sync.Once
		first PumpResult
		res   Result
		g     errgroup.Group
	)
	finish := func(r PumpResult) {
		once.Do(func() { first = r })
		logger.PumpExit(ctx, r.Pump, r.Outcome.String(), r.Err)
		telemetry.RecordPumpExit(ctx, r.Pump, r.Outcome.String(), r.Err)
		b.observer.PumpExited(r.Pump, r.Outcome.String())
		cancel(fmt.Errorf("%s pump exited", r.Pump))
	}

	in := NewInboundPump(b.conn, session, b.observer)
	out := NewOutboundPump(b.conn, session, b.observer, b.cfg)

	g.Go(func() error {
		res.Inbound = in.Run(pctx)
		finish(res.Inbound)
		return nil
	})
	g.Go(func() error {
		res.Outbound = out.Run(pctx)
		finish(res.Outbound)
		return nil
	})
	_ = g.Wait()

	if err := closeSession(); err != nil {
		logger.DebugContext(ctx, "upstream close", "error", err)
	}
	_ = b.conn.Close()

	res.Status = first.Outcome.String()
	if first.Outcome == OutcomeNormalClose {
		return &res, nil
	}
	return &res, first.Err
}
