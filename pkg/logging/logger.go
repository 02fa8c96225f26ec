// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelTrace additionally logs orchestrator state transitions.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown values mean info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Trace: Orchestrator state transitions
//
// Debug: Detailed information for debugging
//   - Every provider request and its classified outcome
//   - Token requests
//   - Rate limit state updates (healthy)
//   - Bytes written per unit
//
// Info: Normal operation events
//   - Run start and completion
//   - Each persisted unit
//   - Successful authentication
//   - Operations that succeeded after retry
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and backoff
//   - Provider throttling (429) and waits
//   - Request credits running low
//   - Throttle store errors (falling back to local waits)
//
// Error: Error conditions that abort a run
//   - Fatal fetch outcomes (401, unexpected status, retries exhausted)
//   - Failed token exchange
//   - Persist failures
//
// Context Fields:
//   - run_id: Run identifier
//   - source: flights or weather
//   - provider: opensky or open-meteo
//   - unit: YYYY-MM-DD/ICAO/kind
//   - status: HTTP status code
//   - reason: Failure reason (unauthorized, server_error, rate_limited, ...)
//   - attempt: Attempt number within a retry policy
//   - backoff: Delay before the next attempt
//   - retry_after: Provider-requested delay
//   - location: Where a unit was written
