package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/bridge"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/providers/internal/streaming"
)

// LiveSession is one open Gemini Live session.
type LiveSession struct {
	conn          *streaming.Conn
	stopHeartbeat context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func newLiveSession(conn *streaming.Conn, stopHeartbeat context.CancelFunc) *LiveSession {
	return &LiveSession{conn: conn, stopHeartbeat: stopHeartbeat}
}

// Send forwards one media fragment as realtime input.
func (s *LiveSession) Send(ctx context.Context, f bridge.Fragment) error {
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MimeType: f.MIMEType, Data: f.Data}},
	}}
	if err := s.conn.Send(ctx, msg); err != nil {
		return pkgerrors.NewKind("gemini", "send", pkgerrors.ErrSend, err).
			WithDetails(map[string]any{"mime_type": f.MIMEType, "bytes": len(f.Data)})
	}
	return nil
}

// ReceiveTurn yields the events of the next turn. The sequence ends after
// EventTurnComplete or after the first error.
func (s *LiveSession) ReceiveTurn(ctx context.Context) iter.Seq2[bridge.ResponseEvent, error] {
	return func(yield func(bridge.ResponseEvent, error) bool) {
		for {
			data, err := s.conn.Receive(ctx)
			if err != nil {
				yield(bridge.ResponseEvent{}, s.receiveError(ctx, err))
				return
			}

			var msg ServerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				yield(bridge.ResponseEvent{}, pkgerrors.NewKind("gemini", "decode", pkgerrors.ErrReceive, err))
				return
			}
			if msg.GoAway != nil {
				logger.WarnContext(ctx, "gemini session ending soon", "time_left", msg.GoAway.TimeLeft)
			}

			events, complete, err := translate(&msg)
			if err != nil {
				yield(bridge.ResponseEvent{}, pkgerrors.NewKind("gemini", "decode", pkgerrors.ErrReceive, err))
				return
			}
			for _, ev := range events {
				if !yield(ev, nil) {
					return
				}
			}
			if complete {
				return
			}
		}
	}
}

// receiveError classifies a failed read. Context errors pass through. A
// websocket read failure is permanent, so any other error ends the session.
func (s *LiveSession) receiveError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if errors.Is(err, streaming.ErrNotConnected) || streaming.IsNormalClose(err) || s.conn.IsClosed() {
		logger.DebugContext(ctx, "gemini connection closed", "error", err)
	} else {
		logger.WarnContext(ctx, "gemini connection failed", "error", logger.RedactSensitiveData(err.Error()))
	}
	return fmt.Errorf("%w: %w", bridge.ErrUpstreamClosed, err)
}

// translate maps one server message to response events. complete reports
// whether the message ended the turn.
func translate(msg *ServerMessage) (events []bridge.ResponseEvent, complete bool, err error) {
	sc := msg.ServerContent
	if sc == nil {
		return []bridge.ResponseEvent{{Type: bridge.EventUnrecognized}}, false, nil
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			switch {
			case part.Text != nil:
				events = append(events, bridge.ResponseEvent{Type: bridge.EventText, Text: *part.Text})
			case part.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, false, fmt.Errorf("inline data: %w", err)
				}
				events = append(events, bridge.ResponseEvent{
					Type:     bridge.EventInlineData,
					MIMEType: part.InlineData.MimeType,
					Data:     data,
				})
			}
		}
	}

	if sc.TurnComplete {
		events = append(events, bridge.ResponseEvent{Type: bridge.EventTurnComplete})
		return events, true, nil
	}
	return events, false, nil
}

// Close stops the heartbeat and closes the connection. It is idempotent.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.stopHeartbeat()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

var _ bridge.UpstreamSession = (*LiveSession)(nil)
