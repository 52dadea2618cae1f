package config

import (
	"fmt"

	"github.com/AltairaLabs/livebridge/runtime/logger"
)

// LoggingSpec configures the process logger.
type LoggingSpec struct {
	// Level is the default log level. Supported values: trace, debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is "json" or "text".
	Format string `json:"format,omitempty"`

	// CommonFields are key-value pairs added to every log entry.
	CommonFields map[string]string `json:"commonFields,omitempty"`
}

// LogLevel constants for programmatic use.
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogFormat constants for programmatic use.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// DefaultLoggingSpec returns a LoggingSpec with sensible defaults.
func DefaultLoggingSpec() LoggingSpec {
	return LoggingSpec{
		Level:  LogLevelInfo,
		Format: LogFormatText,
	}
}

// Validate checks the level and format names.
func (l *LoggingSpec) Validate() error {
	switch l.Level {
	case "", LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	switch l.Format {
	case "", LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("invalid log format %q", l.Format)
	}
	return nil
}

// LoggerSpec converts the manifest section into the logger package's configuration.
func (l *LoggingSpec) LoggerSpec() *logger.LoggingConfigSpec {
	return &logger.LoggingConfigSpec{
		DefaultLevel: l.Level,
		Format:       l.Format,
		CommonFields: l.CommonFields,
	}
}
