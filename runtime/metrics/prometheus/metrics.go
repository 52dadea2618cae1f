// Package prometheus provides Prometheus metrics for the livebridge relay.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livebridge"

var (
	// bridgesActive is a gauge of currently running bridges.
	bridgesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridges_active",
			Help:      "Number of client connections currently bridged upstream",
		},
	)

	// bridgesTotal counts finished bridges by how they ended.
	bridgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridges_total",
			Help:      "Total number of finished bridges",
		},
		[]string{"status"}, // status: normal_close, peer_error, upstream_error, canceled, handshake_error, connect_error
	)

	// bridgeDuration is a histogram of bridge lifetimes.
	bridgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_duration_seconds",
			Help:      "Lifetime of a bridge from accept to teardown in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// upstreamConnectDuration is a histogram of upstream session setup time.
	upstreamConnectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_connect_duration_seconds",
			Help:      "Time to open and set up the upstream session in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"}, // status: success, error
	)

	// fragmentsForwarded counts client fragments sent upstream.
	fragmentsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_forwarded_total",
			Help:      "Total media fragments forwarded upstream",
		},
		[]string{"kind"}, // kind: audio, image
	)

	// fragmentsDropped counts client fragments that were not forwarded.
	fragmentsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_dropped_total",
			Help:      "Total media fragments dropped before reaching upstream",
		},
		[]string{"reason"}, // reason: unsupported_mime, malformed_chunk, send_error
	)

	// envelopeDecodeErrors counts inbound messages that failed to decode.
	envelopeDecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_decode_errors_total",
			Help:      "Total client messages that could not be decoded",
		},
	)

	// responsesForwarded counts upstream responses written to clients.
	responsesForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_forwarded_total",
			Help:      "Total upstream responses forwarded to clients",
		},
		[]string{"kind"}, // kind: text, audio
	)

	// responsesUnhandled counts upstream messages with no recognised content.
	responsesUnhandled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_unhandled_total",
			Help:      "Total upstream messages that carried nothing forwardable",
		},
	)

	// turnsCompleted counts model turns that reached turn-complete.
	turnsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Total model turns completed",
		},
	)

	// receiveRetries counts upstream receive retries.
	receiveRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_retries_total",
			Help:      "Total upstream receive attempts retried after an error",
		},
	)

	// pumpExits counts pump terminations by outcome.
	pumpExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_exits_total",
			Help:      "Total pump exits by pump and outcome",
		},
		[]string{"pump", "outcome"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		bridgesActive,
		bridgesTotal,
		bridgeDuration,
		upstreamConnectDuration,
		fragmentsForwarded,
		fragmentsDropped,
		envelopeDecodeErrors,
		responsesForwarded,
		responsesUnhandled,
		turnsCompleted,
		receiveRetries,
		pumpExits,
	}
)

// RecordBridgeStart records a bridge start.
func RecordBridgeStart() {
	bridgesActive.Inc()
}

// RecordBridgeEnd records a bridge teardown.
func RecordBridgeEnd(status string, durationSeconds float64) {
	bridgesActive.Dec()
	bridgesTotal.WithLabelValues(status).Inc()
	bridgeDuration.Observe(durationSeconds)
}

// RecordUpstreamConnect records an upstream connect attempt.
func RecordUpstreamConnect(status string, durationSeconds float64) {
	upstreamConnectDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordFragmentForwarded records a fragment sent upstream.
func RecordFragmentForwarded(kind string) {
	fragmentsForwarded.WithLabelValues(kind).Inc()
}

// RecordFragmentDropped records a fragment that was not forwarded.
func RecordFragmentDropped(reason string) {
	fragmentsDropped.WithLabelValues(reason).Inc()
}

// RecordEnvelopeDecodeError records an undecodable client message.
func RecordEnvelopeDecodeError() {
	envelopeDecodeErrors.Inc()
}

// RecordResponseForwarded records a response written to the client.
func RecordResponseForwarded(kind string) {
	responsesForwarded.WithLabelValues(kind).Inc()
}

// RecordResponseUnhandled records an upstream message with nothing forwardable.
func RecordResponseUnhandled() {
	responsesUnhandled.Inc()
}

// RecordTurnCompleted records a completed model turn.
func RecordTurnCompleted() {
	turnsCompleted.Inc()
}

// RecordReceiveRetry records a retried upstream receive.
func RecordReceiveRetry() {
	receiveRetries.Inc()
}

// RecordPumpExit records a pump termination.
func RecordPumpExit(pump, outcome string) {
	pumpExits.WithLabelValues(pump, outcome).Inc()
}
