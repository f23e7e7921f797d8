// Package zerolog wires the process-wide zerolog logger and provides
// context helpers used by handlers and business logic.
package zerolog

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger with the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func Setup(level string) {
	SetupWriter(level, os.Stdout)
}

// SetupWriter is Setup with an explicit output, used by tests.
func SetupWriter(level string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(level))

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	// Loggers pulled from a context without one attached use the global logger.
	zerolog.DefaultContextLogger = &log.Logger
}

// ParseLevel converts a level string into a zerolog.Level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// FromContext returns the request-scoped logger stored by the logging
// middleware, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithFields returns a context carrying a child logger with the given string fields.
func WithFields(ctx context.Context, fields map[string]string) context.Context {
	l := FromContext(ctx).With()
	for k, v := range fields {
		l = l.Str(k, v)
	}
	logger := l.Logger()
	return logger.WithContext(ctx)
}
