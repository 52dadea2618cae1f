package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
)

var (
	errTurnTimeout   = errors.New("turn timed out")
	errTurnTruncated = errors.New("turn ended without turn-complete")
)

// turnError carries a failure out of one turn together with its side.
type turnError struct {
	write bool
	err   error
}

// OutboundPump forwards upstream responses to the client, one turn at a time.
type OutboundPump struct {
	conn     ClientConn
	session  UpstreamSession
	observer Observer

	turnTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewOutboundPump creates an outbound pump using the retry and timeout settings of cfg.
func NewOutboundPump(conn ClientConn, session UpstreamSession, observer Observer, cfg Config) *OutboundPump {
	cfg.defaults()
	if observer == nil {
		observer = NopObserver{}
	}
	return &OutboundPump{
		conn:        conn,
		session:     session,
		observer:    observer,
		turnTimeout: cfg.TurnTimeout,
		maxRetries:  max(cfg.MaxReceiveRetries, 0),
		backoff:     cfg.ReceiveRetryBackoff,
		maxBackoff:  cfg.MaxReceiveRetryBackoff,
	}
}

// Run drains turns until the client goes away, the upstream fails past the
// retry budget, or ctx is cancelled. Run never closes the session or the connection.
func (p *OutboundPump) Run(ctx context.Context) PumpResult {
	ctx = logger.WithPump(ctx, PumpOutbound)
	failures := 0

	for {
		if ctx.Err() != nil {
			return PumpResult{Pump: PumpOutbound, Outcome: OutcomeCanceled, Err: context.Cause(ctx)}
		}

		terr := p.drainTurn(ctx)
		if terr == nil {
			failures = 0
			continue
		}

		if ctx.Err() != nil {
			return PumpResult{Pump: PumpOutbound, Outcome: OutcomeCanceled, Err: context.Cause(ctx)}
		}

		if terr.write {
			if errors.Is(terr.err, ErrClientClosed) {
				return PumpResult{Pump: PumpOutbound, Outcome: OutcomeNormalClose}
			}
			return PumpResult{Pump: PumpOutbound, Outcome: OutcomePeerError, Err: terr.err}
		}

		if errors.Is(terr.err, ErrUpstreamClosed) {
			return PumpResult{Pump: PumpOutbound, Outcome: OutcomeUpstreamError, Err: terr.err}
		}

		failures++
		if failures > p.maxRetries {
			return PumpResult{
				Pump:    PumpOutbound,
				Outcome: OutcomeUpstreamError,
				Err:     fmt.Errorf("giving up after %d receive failures: %w", failures, terr.err),
			}
		}

		delay := p.retryDelay(failures)
		p.observer.ReceiveRetried()
		logger.WarnContext(ctx, "upstream receive failed, retrying",
			"attempt", failures, "max_retries", p.maxRetries, "delay", delay,
			"error", logger.RedactSensitiveData(terr.err.Error()))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// drainTurn forwards the events of one turn. It returns nil once the turn completed.
func (p *OutboundPump) drainTurn(ctx context.Context) *turnError {
	turnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var deadline *time.Timer
	defer func() {
		if deadline != nil {
			deadline.Stop()
		}
	}()

	forwarded := 0
	for ev, err := range p.session.ReceiveTurn(turnCtx) {
		if err != nil {
			if context.Cause(turnCtx) == errTurnTimeout && ctx.Err() == nil {
				err = errTurnTimeout
			}
			if !errors.Is(err, ErrUpstreamClosed) && !errors.Is(err, pkgerrors.ErrReceive) {
				err = pkgerrors.NewKind("bridge", "receive turn", pkgerrors.ErrReceive, err)
			}
			return &turnError{err: err}
		}

		if deadline == nil && p.turnTimeout > 0 {
			deadline = time.AfterFunc(p.turnTimeout, func() { cancel(errTurnTimeout) })
		}

		switch ev.Type {
		case EventText, EventInlineData:
			if terr := p.forward(ctx, ev); terr != nil {
				return terr
			}
			forwarded++
		case EventTurnComplete:
			p.observer.TurnCompleted()
			telemetry.RecordTurnComplete(ctx, forwarded)
			logger.DebugContext(ctx, "turn complete", "responses", forwarded)
			return nil
		default:
			p.observer.ResponseUnhandled()
			logger.InfoContext(ctx, "unhandled server message")
		}
	}

	return &turnError{err: pkgerrors.NewKind("bridge", "receive turn", pkgerrors.ErrReceive, errTurnTruncated)}
}

// forward encodes one text or inline-data event and writes it to the client.
func (p *OutboundPump) forward(ctx context.Context, ev ResponseEvent) *turnError {
	var (
		data []byte
		err  error
		kind = "text"
	)
	if ev.Type == EventInlineData {
		kind = "audio"
		logger.DebugContext(ctx, "forwarding inline data", "mime_type", ev.MIMEType, "bytes", len(ev.Data))
		data, err = encodeInlineData(ev.Data)
	} else {
		data, err = encodeText(ev.Text)
	}
	if err != nil {
		return &turnError{write: true, err: err}
	}
	if err := p.conn.WriteMessage(ctx, data); err != nil {
		return &turnError{write: true, err: err}
	}
	p.observer.ResponseForwarded(kind)
	return nil
}

// retryDelay doubles the base backoff per consecutive failure, up to maxBackoff.
func (p *OutboundPump) retryDelay(failures int) time.Duration {
	d := p.backoff
	for i := 1; i < failures && d < p.maxBackoff; i++ {
		d *= 2
	}
	return min(d, p.maxBackoff)
}
