package bridge

import (
	"context"
	"errors"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/logger"
)

// Drop reasons reported to the Observer.
const (
	dropUnsupportedMIME = "unsupported_mime"
	dropSendError       = "send_error"
	dropMalformedChunk  = "malformed_chunk"
)

// InboundPump forwards client media fragments to the upstream session in
// arrival order.
type InboundPump struct {
	conn     ClientConn
	session  UpstreamSession
	observer Observer
}

// NewInboundPump creates an inbound pump.
func NewInboundPump(conn ClientConn, session UpstreamSession, observer Observer) *InboundPump {
	if observer == nil {
		observer = NopObserver{}
	}
	return &InboundPump{conn: conn, session: session, observer: observer}
}

// Run reads client envelopes until the connection ends or ctx is cancelled.
// Bad envelopes and failed sends are logged and skipped. Run never closes
// the session.
func (p *InboundPump) Run(ctx context.Context) PumpResult {
	ctx = logger.WithPump(ctx, PumpInbound)

	for {
		data, err := p.conn.ReadMessage(ctx)
		if err != nil {
			return p.exit(ctx, err)
		}
		p.handle(ctx, data)
	}
}

func (p *InboundPump) exit(ctx context.Context, err error) PumpResult {
	res := PumpResult{Pump: PumpInbound}
	switch {
	case ctx.Err() != nil:
		res.Outcome = OutcomeCanceled
		res.Err = context.Cause(ctx)
	case errors.Is(err, ErrClientClosed):
		res.Outcome = OutcomeNormalClose
	default:
		res.Outcome = OutcomePeerError
		res.Err = err
	}
	return res
}

func (p *InboundPump) handle(ctx context.Context, data []byte) {
	input, err := decodeEnvelope(data)
	if err != nil {
		p.observer.EnvelopeDecodeFailed()
		decodeErr := pkgerrors.NewKind("bridge", "decode envelope", pkgerrors.ErrDecode, err).
			WithDetails(map[string]any{"bytes": len(data)})
		logger.WarnContext(ctx, "dropping client message", "error", decodeErr)
		return
	}
	if input == nil {
		logger.DebugContext(ctx, "client message has no realtime_input")
		return
	}

	for _, chunk := range input.MediaChunks {
		frag, ok := fragmentFor(chunk)
		if !ok && chunk.malformed {
			p.observer.FragmentDropped(dropMalformedChunk)
			logger.DebugContext(ctx, "ignoring malformed media chunk", "mime_type", chunk.MIMEType)
			continue
		}
		if !ok {
			p.observer.FragmentDropped(dropUnsupportedMIME)
			logger.DebugContext(ctx, "ignoring media chunk", "mime_type", chunk.MIMEType)
			continue
		}

		if err := p.session.Send(ctx, frag); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.observer.FragmentDropped(dropSendError)
			if !errors.Is(err, pkgerrors.ErrSend) {
				err = pkgerrors.NewKind("bridge", "send fragment", pkgerrors.ErrSend, err).
					WithDetails(map[string]any{"mime_type": frag.MIMEType, "bytes": len(frag.Data)})
			}
			logger.WarnContext(ctx, "failed to forward fragment", "kind", string(frag.Kind), "error", err)
			continue
		}
		p.observer.FragmentForwarded(string(frag.Kind))
	}
}
