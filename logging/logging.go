// Package logging is the narrow leveled-logging capability consumed by the
// interception engine. Adapt any backend by implementing Logger; Slog adapts
// log/slog.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Level is a log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String implements fmt.Stringer
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Logger is a minimal leveled logger. Log is only called when Enabled
// returns true for the same level.
type Logger interface {
	Enabled(level Level) bool
	Log(level Level, msg string)
}

// Write logs msg at level if l is non-nil and the level is enabled
func Write(l Logger, level Level, msg string) {
	if l == nil || !l.Enabled(level) {
		return
	}
	l.Log(level, msg)
}

// Writef formats and logs only when the level is enabled
func Writef(l Logger, level Level, format string, args ...any) {
	if l == nil || !l.Enabled(level) {
		return
	}
	l.Log(level, fmt.Sprintf(format, args...))
}

// SlogLevelFatal is the slog level used for LevelFatal
const SlogLevelFatal = slog.LevelError + 4

// SlogLevel maps a Level to a slog.Level
func SlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return SlogLevelFatal
	}
}

type slogLogger struct {
	logger *slog.Logger
}

// Slog adapts a *slog.Logger. A nil logger falls back to slog.Default().
func Slog(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Enabled(level Level) bool {
	return l.logger.Enabled(context.Background(), SlogLevel(level))
}

func (l *slogLogger) Log(level Level, msg string) {
	l.logger.Log(context.Background(), SlogLevel(level), msg)
}

// Unwrap returns the adapted slog logger
func (l *slogLogger) Unwrap() *slog.Logger {
	return l.logger
}

// SlogFrom returns the *slog.Logger behind l when l was built by Slog
func SlogFrom(l Logger) (*slog.Logger, bool) {
	if s, ok := l.(*slogLogger); ok {
		return s.logger, true
	}
	return nil, false
}

type nopLogger struct{}

// Nop returns a logger that discards everything
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Enabled(Level) bool { return false }
func (nopLogger) Log(Level, string)  {}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
