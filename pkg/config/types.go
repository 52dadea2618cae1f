// Package config defines the livebridge configuration manifest and its loader.
//
// Configuration files use a K8s-style manifest format:
//
//	apiVersion: livebridge.altairalabs.ai/v1alpha1
//	kind: BridgeConfig
//	metadata:
//	  name: local
//	spec:
//	  listen:
//	    addr: localhost:9083
//	  upstream:
//	    model: gemini-2.0-flash-exp
//
// Files are validated against an embedded JSON schema before decoding, and any
// field left out keeps the value from Default.
package config

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Manifest identifiers.
const (
	APIVersion = "livebridge.altairalabs.ai/v1alpha1"
	Kind       = "BridgeConfig"
)

// Provider names.
const (
	ProviderGemini = "gemini"
)

// Defaults for a local single-user setup.
const (
	DefaultListenAddr   = "localhost:9083"
	DefaultStaticAddr   = "localhost:8000"
	DefaultStaticDir    = "."
	DefaultMetricsAddr  = "localhost:9090"
	DefaultModel        = "gemini-2.0-flash-exp"
	DefaultGeminiURL    = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultServiceName  = "livebridge"
	defaultMaxMsgBytes  = 16 * 1024 * 1024
	defaultConnectTries = 3
	defaultRecvRetries  = 3
)

// DefaultSystemInstruction is the fixed instruction sent with every upstream session.
const DefaultSystemInstruction = `You are a helpful assistant for screen sharing sessions. Your role is to:
1) Analyze and describe the content being shared on screen
2) Answer questions about the shared content
3) Provide relevant information and context about what's being shown
4) Assist with technical issues related to screen sharing
5) Maintain a professional and helpful tone. Focus on being concise and clear in your responses.`

// BridgeConfig is the top-level configuration manifest.
type BridgeConfig struct {
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Metadata   metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec       BridgeSpec        `json:"spec"`
}

// BridgeSpec holds every tunable of the relay process.
type BridgeSpec struct {
	Listen    ListenSpec    `json:"listen"`
	Upstream  UpstreamSpec  `json:"upstream"`
	Session   SessionSpec   `json:"session"`
	Static    StaticSpec    `json:"static"`
	Metrics   MetricsSpec   `json:"metrics"`
	Telemetry TelemetrySpec `json:"telemetry"`
	Logging   LoggingSpec   `json:"logging"`
}

// ListenSpec configures the websocket acceptor.
type ListenSpec struct {
	// Addr is the host:port the relay listens on.
	Addr string `json:"addr"`

	// AllowedOrigins restricts the Origin header on upgrade. Empty allows any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// MaxConnectionsPerSecond limits new connections. Zero means unlimited.
	MaxConnectionsPerSecond float64 `json:"maxConnectionsPerSecond,omitempty"`

	// MaxMessageBytes is the read limit applied to client messages.
	MaxMessageBytes int64 `json:"maxMessageBytes,omitempty"`
}

// UpstreamSpec configures the remote streaming session.
type UpstreamSpec struct {
	Provider          string          `json:"provider"`
	URL               string          `json:"url"`
	Model             string          `json:"model"`
	SystemInstruction string          `json:"systemInstruction"`
	APIKeyEnv         []string        `json:"apiKeyEnv,omitempty"`
	DialTimeout       metav1.Duration `json:"dialTimeout"`
	SetupTimeout      metav1.Duration `json:"setupTimeout"`
	HeartbeatInterval metav1.Duration `json:"heartbeatInterval"`
	MaxConnectRetries int             `json:"maxConnectRetries"`
}

// SessionSpec configures per-connection bridge behaviour.
type SessionSpec struct {
	// HandshakeTimeout bounds the wait for the client's setup message.
	HandshakeTimeout metav1.Duration `json:"handshakeTimeout"`

	// ConnectTimeout bounds opening the upstream session, setup included.
	ConnectTimeout metav1.Duration `json:"connectTimeout"`

	// TurnTimeout bounds a turn once its first response has arrived. Zero disables it.
	TurnTimeout metav1.Duration `json:"turnTimeout"`

	// MaxReceiveRetries is how many consecutive receive failures the outbound
	// pump tolerates before giving up.
	MaxReceiveRetries int `json:"maxReceiveRetries"`

	// ReceiveRetryBackoff is the first delay between receive retries; it doubles per attempt.
	ReceiveRetryBackoff metav1.Duration `json:"receiveRetryBackoff"`
}

// StaticSpec configures the static UI server.
type StaticSpec struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr"`
	Dir         string `json:"dir"`
	OpenBrowser bool   `json:"openBrowser"`
}

// MetricsSpec configures the Prometheus exporter.
type MetricsSpec struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// TelemetrySpec configures OpenTelemetry tracing. An empty endpoint disables export.
type TelemetrySpec struct {
	OTLPEndpoint string `json:"otlpEndpoint,omitempty"`
	ServiceName  string `json:"serviceName,omitempty"`
}

// Default returns a configuration with every field populated.
func Default() *BridgeConfig {
	return &BridgeConfig{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata:   metav1.ObjectMeta{Name: "default"},
		Spec: BridgeSpec{
			Listen: ListenSpec{
				Addr:            DefaultListenAddr,
				MaxMessageBytes: defaultMaxMsgBytes,
			},
			Upstream: UpstreamSpec{
				Provider:          ProviderGemini,
				URL:               DefaultGeminiURL,
				Model:             DefaultModel,
				SystemInstruction: DefaultSystemInstruction,
				APIKeyEnv:         append([]string(nil), DefaultAPIKeyEnv...),
				DialTimeout:       metav1.Duration{Duration: 45 * time.Second},
				SetupTimeout:      metav1.Duration{Duration: 10 * time.Second},
				HeartbeatInterval: metav1.Duration{Duration: 30 * time.Second},
				MaxConnectRetries: defaultConnectTries,
			},
			Session: SessionSpec{
				HandshakeTimeout:    metav1.Duration{Duration: 30 * time.Second},
				ConnectTimeout:      metav1.Duration{Duration: 45 * time.Second},
				TurnTimeout:         metav1.Duration{Duration: 2 * time.Minute},
				MaxReceiveRetries:   defaultRecvRetries,
				ReceiveRetryBackoff: metav1.Duration{Duration: 500 * time.Millisecond},
			},
			Static: StaticSpec{
				Enabled:     true,
				Addr:        DefaultStaticAddr,
				Dir:         DefaultStaticDir,
				OpenBrowser: true,
			},
			Metrics: MetricsSpec{
				Enabled: false,
				Addr:    DefaultMetricsAddr,
			},
			Telemetry: TelemetrySpec{
				ServiceName: DefaultServiceName,
			},
			Logging: DefaultLoggingSpec(),
		},
	}
}
