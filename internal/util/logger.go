// Package util provides a structured logger for the application.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel represents logging severity levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel converts a string to LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging.
type Logger struct {
	level  LogLevel
	format string // "json" or "text"
	slog   *slog.Logger
}

// NewLogger creates a new logger writing to stdout.
func NewLogger(level, format string) *Logger {
	return NewLoggerWithOutput(os.Stdout, level, format)
}

// NewLoggerWithOutput creates a logger writing to w.
func NewLoggerWithOutput(w io.Writer, level, format string) *Logger {
	lvl := ParseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lvl.slogLevel()}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		format = "json"
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		level:  lvl,
		format: format,
		slog:   slog.New(handler),
	}
}

// With returns a new logger with an additional field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		level:  l.level,
		format: l.format,
		slog:   l.slog.With(key, value),
	}
}

// WithFields returns a new logger with multiple additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		level:  l.level,
		format: l.format,
		slog:   l.slog.With(args...),
	}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.slog.Debug(msg, normalize(args)...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.slog.Info(msg, normalize(args)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.slog.Warn(msg, normalize(args)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.slog.Error(msg, normalize(args)...)
}

// normalize converts error values to strings so both handlers render them
// the same way.
func normalize(args []interface{}) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if err, ok := a.(error); ok {
			out[i] = err.Error()
			continue
		}
		out[i] = a
	}
	return out
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewLogger("info", "json")
)

// SetDefaultLogger sets the default logger.
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// GetDefaultLogger returns the default logger.
func GetDefaultLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Package-level convenience functions

func Debug(msg string, args ...interface{}) {
	GetDefaultLogger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	GetDefaultLogger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	GetDefaultLogger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	GetDefaultLogger().Error(msg, args...)
}
