package prometheus

import "time"

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// BridgeListener records bridge lifecycle callbacks as Prometheus metrics.
// It satisfies bridge.Observer and is installed on the acceptor.
type BridgeListener struct{}

// NewBridgeListener creates a new BridgeListener.
func NewBridgeListener() *BridgeListener {
	return &BridgeListener{}
}

// BridgeStarted is called once a client connection has been accepted.
func (l *BridgeListener) BridgeStarted() {
	RecordBridgeStart()
}

// BridgeFinished is called after teardown with the bridge's final status.
func (l *BridgeListener) BridgeFinished(status string, d time.Duration) {
	RecordBridgeEnd(status, d.Seconds())
}

// UpstreamConnected is called after an upstream dial attempt.
func (l *BridgeListener) UpstreamConnected(err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	RecordUpstreamConnect(status, d.Seconds())
}

// FragmentForwarded is called when a fragment reaches the upstream session.
func (l *BridgeListener) FragmentForwarded(kind string) {
	RecordFragmentForwarded(kind)
}

// FragmentDropped is called when a fragment is discarded.
func (l *BridgeListener) FragmentDropped(reason string) {
	RecordFragmentDropped(reason)
}

// EnvelopeDecodeFailed is called when a client message cannot be decoded.
func (l *BridgeListener) EnvelopeDecodeFailed() {
	RecordEnvelopeDecodeError()
}

// ResponseForwarded is called when a response is written to the client.
func (l *BridgeListener) ResponseForwarded(kind string) {
	RecordResponseForwarded(kind)
}

// ResponseUnhandled is called for upstream messages with nothing to forward.
func (l *BridgeListener) ResponseUnhandled() {
	RecordResponseUnhandled()
}

// TurnCompleted is called at each turn-complete signal.
func (l *BridgeListener) TurnCompleted() {
	RecordTurnCompleted()
}

// ReceiveRetried is called before the outbound pump retries a failed receive.
func (l *BridgeListener) ReceiveRetried() {
	RecordReceiveRetry()
}

// PumpExited is called once per pump with its outcome.
func (l *BridgeListener) PumpExited(pump, outcome string) {
	RecordPumpExit(pump, outcome)
}
