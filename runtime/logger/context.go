package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// Values stored under these keys are added to every record logged with that context.
const (
	// ContextKeySessionID identifies the relay session (one per client connection).
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyRemoteAddr is the client's network address.
	ContextKeyRemoteAddr contextKey = "remote_addr"

	// ContextKeyPump names the pump ("inbound" or "outbound").
	ContextKeyPump contextKey = "pump"

	// ContextKeyProvider identifies the upstream provider (e.g., "gemini").
	ContextKeyProvider contextKey = "provider"

	// ContextKeyModel identifies the upstream model.
	ContextKeyModel contextKey = "model"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyRemoteAddr,
	ContextKeyPump,
	ContextKeyProvider,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithRemoteAddr returns a new context with the client address set.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ContextKeyRemoteAddr, addr)
}

// WithPump returns a new context with the pump name set.
func WithPump(ctx context.Context, pump string) context.Context {
	return context.WithValue(ctx, ContextKeyPump, pump)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	SessionID  string
	RemoteAddr string
	Pump       string
	Provider   string
	Model      string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.RemoteAddr != "" {
		ctx = WithRemoteAddr(ctx, fields.RemoteAddr)
	}
	if fields.Pump != "" {
		ctx = WithPump(ctx, fields.Pump)
	}
	if fields.Provider != "" {
		ctx = WithProvider(ctx, fields.Provider)
	}
	if fields.Model != "" {
		ctx = WithModel(ctx, fields.Model)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	str := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return LoggingFields{
		SessionID:  str(ContextKeySessionID),
		RemoteAddr: str(ContextKeyRemoteAddr),
		Pump:       str(ContextKeyPump),
		Provider:   str(ContextKeyProvider),
		Model:      str(ContextKeyModel),
	}
}
