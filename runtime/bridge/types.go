// Package bridge relays one realtime client connection to one upstream
// streaming session.
//
// A Bridge performs a single setup handshake with the client, opens the
// upstream session and then runs two supervised pumps: the inbound pump
// forwards client media fragments upstream, the outbound pump forwards
// upstream responses back to the client. The first pump to exit cancels its
// sibling; both the upstream session and the client connection are released
// once both pumps have returned.
package bridge

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrClientClosed marks a clean close of the client connection (close codes 1000/1001).
var ErrClientClosed = errors.New("client connection closed")

// ErrUpstreamClosed marks an upstream session that ended and will produce no more turns.
var ErrUpstreamClosed = errors.New("upstream session closed")

// ClientConn is a duplex message channel to one client.
//
// ReadMessage is called by one goroutine at a time; WriteMessage may be called
// concurrently with ReadMessage and Close.
type ClientConn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// FragmentKind tags a media fragment.
type FragmentKind string

// Fragment kinds.
const (
	FragmentAudio FragmentKind = "audio"
	FragmentImage FragmentKind = "image"
)

// Fragment is one media unit taken from a client envelope. Data is the
// client's base64 payload, forwarded untouched.
type Fragment struct {
	Kind     FragmentKind
	MIMEType string
	Data     string
}

// EventType tags a ResponseEvent.
type EventType int

// Response event types.
const (
	EventUnrecognized EventType = iota
	EventText
	EventInlineData
	EventTurnComplete
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventInlineData:
		return "inline_data"
	case EventTurnComplete:
		return "turn_complete"
	default:
		return "unrecognized"
	}
}

// ResponseEvent is one item of an upstream turn.
type ResponseEvent struct {
	Type     EventType
	Text     string
	MIMEType string
	Data     []byte
}

// UpstreamSession is the handle to one remote streaming session.
//
// Send and ReceiveTurn are used by different goroutines. ReceiveTurn yields
// the events of one turn, ending after the EventTurnComplete event or after
// yielding a non-nil error. Close is idempotent.
type UpstreamSession interface {
	Send(ctx context.Context, f Fragment) error
	ReceiveTurn(ctx context.Context) iter.Seq2[ResponseEvent, error]
	Close() error
}

// UpstreamDialer opens upstream sessions.
type UpstreamDialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (UpstreamSession, error)
}

// Outcome is the terminal state of a pump.
type Outcome int

// Pump outcomes.
const (
	// OutcomeNormalClose means the client closed cleanly.
	OutcomeNormalClose Outcome = iota
	// OutcomePeerError means the client connection failed.
	OutcomePeerError
	// OutcomeUpstreamError means the upstream session failed or ended.
	OutcomeUpstreamError
	// OutcomeCanceled means the pump was stopped because its sibling exited first.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNormalClose:
		return "normal_close"
	case OutcomePeerError:
		return "peer_error"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Pump names.
const (
	PumpInbound  = "inbound"
	PumpOutbound = "outbound"
)

// PumpResult is what a pump returns when it stops.
type PumpResult struct {
	Pump    string
	Outcome Outcome
	Err     error
}

// Bridge statuses reported when a bridge ends before its pumps start.
const (
	StatusHandshakeError = "handshake_error"
	StatusConnectError   = "connect_error"
)

// Result summarises one bridge run.
type Result struct {
	SessionID string
	Status    string
	Inbound   PumpResult
	Outbound  PumpResult
	Duration  time.Duration
}

// Observer receives bridge lifecycle callbacks. It is how metrics are
// recorded without the bridge depending on a metrics backend.
type Observer interface {
	BridgeStarted()
	BridgeFinished(status string, d time.Duration)
	UpstreamConnected(err error, d time.Duration)
	FragmentForwarded(kind string)
	FragmentDropped(reason string)
	EnvelopeDecodeFailed()
	ResponseForwarded(kind string)
	ResponseUnhandled()
	TurnCompleted()
	ReceiveRetried()
	PumpExited(pump, outcome string)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) BridgeStarted() {}
func (NopObserver) BridgeFinished(string, time.Duration) {}
func (NopObserver) UpstreamConnected(error, time.Duration) {}
func (NopObserver) FragmentForwarded(string) {}
func (NopObserver) FragmentDropped(string) {}
func (NopObserver) EnvelopeDecodeFailed() {}
func (NopObserver) ResponseForwarded(string) {}
func (NopObserver) ResponseUnhandled() {}
func (NopObserver) TurnCompleted() {}
func (NopObserver) ReceiveRetried() {}
func (NopObserver) PumpExited(string, string) {}

var _ Observer = NopObserver{}
