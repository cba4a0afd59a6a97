// Package logging wraps zerolog for the client's long-lived workers: the
// multiplex engine and the reconnect loop log structured
// connect/disconnect/error/backoff events through it. The instrument cache
// does not log. It is never used for control flow.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin, component-scoped wrapper around zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing to w at the given component scope.
func New(w io.Writer, component string) *Logger {
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{z: z}
}

// Default builds a Logger writing to stderr.
func Default(component string) *Logger {
	return New(os.Stderr, component)
}

// Nop builds a Logger that discards everything, used when the caller does
// not configure one.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.z.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.z.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.z.Warn().Msgf(format, args...)
}

func (l *Logger) Errf(err error, format string, args ...interface{}) {
	l.z.Error().Err(err).Msgf(format, args...)
}
