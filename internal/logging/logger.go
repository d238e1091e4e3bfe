// Package logging provides the structured logger used across envmgr.
package logging

import (
	"io"
	"log/slog"
)

// Logger provides structured logging for manager operations.
// This interface allows callers to plug in their own logging implementation.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger is a Logger implementation that does nothing.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &noopLogger{}
}

// OrNop returns l, or the no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewSlog wraps an existing slog logger.
func NewSlog(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

// NewText returns a text-handler logger writing to w at the given level.
func NewText(w io.Writer, level slog.Level) Logger {
	return NewSlog(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (s *slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.l.Debug(msg, keysAndValues...)
}

func (s *slogLogger) Info(msg string, keysAndValues ...interface{}) {
	s.l.Info(msg, keysAndValues...)
}

func (s *slogLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.l.Warn(msg, keysAndValues...)
}

func (s *slogLogger) Error(msg string, keysAndValues ...interface{}) {
	s.l.Error(msg, keysAndValues...)
}
