// Package logger owns the process-wide zerolog logger and the scoped
// child loggers used by each component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger discards everything until Init runs, which keeps tests quiet
var Logger = zerolog.Nop()

// Options selects level, encoding and destination of the global logger
type Options struct {
	Level  string
	Format string // "json" (default) or "console"
	Output io.Writer
}

// Init replaces the global logger. Unknown levels fall back to info; the
// console format is also chosen when ENV=development.
func Init(opts Options) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == "console" || os.Getenv("ENV") == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", "auditwatch").
		Logger()

	Logger.Info().
		Str("level", level.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTarget scopes a component logger to a monitored target
func WithTarget(component, targetID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("target_id", targetID).
		Logger()
}

// WithRule scopes a component logger to an alert rule
func WithRule(component, ruleID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("rule_id", ruleID).
		Logger()
}

func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}
