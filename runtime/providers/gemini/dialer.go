// Package gemini adapts the Gemini Live websocket API to bridge.UpstreamSession.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/AltairaLabs/livebridge/pkg/errors"
	"github.com/AltairaLabs/livebridge/runtime/bridge"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/providers/internal/streaming"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
)

// Defaults for DialerConfig.
const (
	DefaultURL               = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultSetupTimeout      = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

const (
	apiKeyHeader = "x-goog-api-key"
	modelPrefix  = "models/"
)

var errSetupIncomplete = errors.New("setupComplete not received")

// DialerConfig configures a LiveDialer.
type DialerConfig struct {
	// URL is the BidiGenerateContent websocket endpoint.
	URL string

	// APIKey is sent in the x-goog-api-key header.
	APIKey string

	// DialTimeout bounds a single websocket handshake.
	DialTimeout time.Duration

	// SetupTimeout bounds the wait for setupComplete.
	SetupTimeout time.Duration

	// HeartbeatInterval is the ping period. Negative disables pings.
	HeartbeatInterval time.Duration

	// MaxConnectRetries is the number of dial attempts.
	MaxConnectRetries int

	// MaxMessageSize caps a single server message.
	MaxMessageSize int64
}

// LiveDialer opens Gemini Live sessions. It is safe for concurrent use.
type LiveDialer struct {
	cfg DialerConfig
}

// NewLiveDialer creates a dialer, filling unset fields with defaults.
func NewLiveDialer(cfg DialerConfig) *LiveDialer {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = DefaultSetupTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &LiveDialer{cfg: cfg}
}

// Dial connects, sends the setup message built from sc and waits for
// setupComplete. The returned session owns the connection.
func (d *LiveDialer) Dial(ctx context.Context, sc bridge.SessionConfig) (bridge.UpstreamSession, error) {
	ctx = logger.WithModel(ctx, sc.Model)

	headers := http.Header{}
	if d.cfg.APIKey != "" {
		headers.Set(apiKeyHeader, d.cfg.APIKey)
	}
	telemetry.InjectTraceHeaders(ctx, headers)

	conn := streaming.NewConn(&streaming.ConnConfig{
		URL:            d.cfg.URL,
		Headers:        headers,
		DialTimeout:    d.cfg.DialTimeout,
		MaxMessageSize: d.cfg.MaxMessageSize,
		MaxRetries:     d.cfg.MaxConnectRetries,
	})
	if err := conn.ConnectWithRetry(ctx); err != nil {
		return nil, pkgerrors.New("gemini", "connect", err)
	}

	if err := d.setup(ctx, conn, sc); err != nil {
		_ = conn.Close()
		return nil, err
	}

	hbCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	conn.StartHeartbeat(hbCtx, d.cfg.HeartbeatInterval)
	logger.DebugContext(ctx, "gemini session ready")

	return newLiveSession(conn, stop), nil
}

func (d *LiveDialer) setup(ctx context.Context, conn *streaming.Conn, sc bridge.SessionConfig) error {
	if err := conn.Send(ctx, buildSetupMessage(sc)); err != nil {
		return pkgerrors.New("gemini", "send setup", err)
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SetupTimeout)
	defer cancel()

	data, err := conn.Receive(sctx)
	if err != nil {
		return pkgerrors.New("gemini", "await setup", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return pkgerrors.New("gemini", "await setup", fmt.Errorf("invalid setup response: %w", err))
	}
	if msg.SetupComplete == nil {
		return pkgerrors.New("gemini", "await setup", errSetupIncomplete)
	}
	return nil
}

// buildSetupMessage combines the client's setup options with the fixed
// model and system instruction.
func buildSetupMessage(sc bridge.SessionConfig) map[string]any {
	setup := sc.Options()
	setup["model"] = modelName(sc.Model)
	if sc.SystemInstruction != "" {
		setup["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": sc.SystemInstruction}},
		}
	}
	return map[string]any{"setup": setup}
}

// modelName returns the model in "models/{model}" form.
func modelName(model string) string {
	if strings.HasPrefix(model, modelPrefix) {
		return model
	}
	return modelPrefix + model
}
