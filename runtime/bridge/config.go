package bridge

import "time"

// Default timeouts and retry bounds.
const (
	DefaultHandshakeTimeout       = 30 * time.Second
	DefaultConnectTimeout         = 45 * time.Second
	DefaultTurnTimeout            = 2 * time.Minute
	DefaultMaxReceiveRetries      = 3
	DefaultReceiveRetryBackoff    = 500 * time.Millisecond
	DefaultMaxReceiveRetryBackoff = 10 * time.Second
	DefaultWriteWait              = 10 * time.Second
)

// setup keys that the client may not override.
var reservedSetupKeys = []string{"system_instruction", "systemInstruction", "model"}

// SessionConfig is the immutable configuration used to open one upstream session.
type SessionConfig struct {
	// Model is the process-wide upstream model identifier.
	Model string

	// SystemInstruction is the process-wide instruction; it always wins over
	// anything the client sent.
	SystemInstruction string

	options map[string]any
}

// NewSessionConfig merges the client's setup options with the fixed model and
// instruction. The options are deep-copied and reserved keys are dropped.
func NewSessionConfig(model, instruction string, setup map[string]any) SessionConfig {
	opts := copyMap(setup)
	for _, k := range reservedSetupKeys {
		delete(opts, k)
	}
	return SessionConfig{
		Model:             model,
		SystemInstruction: instruction,
		options:           opts,
	}
}

// Option returns a client-provided setup field.
func (c SessionConfig) Option(key string) (any, bool) {
	v, ok := c.options[key]
	return v, ok
}

// Options returns a deep copy of the client-provided setup fields.
func (c SessionConfig) Options() map[string]any {
	return copyMap(c.options)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Config holds the per-bridge tunables. Zero values take the defaults above.
type Config struct {
	Model             string
	SystemInstruction string

	// HandshakeTimeout bounds the wait for the client's first message.
	HandshakeTimeout time.Duration

	// ConnectTimeout bounds opening the upstream session.
	ConnectTimeout time.Duration

	// TurnTimeout bounds a turn once its first event has arrived. Negative disables it.
	TurnTimeout time.Duration

	// MaxReceiveRetries is the number of consecutive receive failures tolerated
	// before the outbound pump gives up. Negative disables retries.
	MaxReceiveRetries int

	// ReceiveRetryBackoff is the first retry delay; it doubles up to MaxReceiveRetryBackoff.
	ReceiveRetryBackoff    time.Duration
	MaxReceiveRetryBackoff time.Duration

	// WriteWait bounds a single write to the client.
	WriteWait time.Duration
}

func (c *Config) defaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.MaxReceiveRetries == 0 {
		c.MaxReceiveRetries = DefaultMaxReceiveRetries
	}
	if c.ReceiveRetryBackoff <= 0 {
		c.ReceiveRetryBackoff = DefaultReceiveRetryBackoff
	}
	if c.MaxReceiveRetryBackoff <= 0 {
		c.MaxReceiveRetryBackoff = DefaultMaxReceiveRetryBackoff
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
}
