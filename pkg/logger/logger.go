package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel names a minimum log level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON selects the JSON handler instead of text
	JSON bool
	// Output defaults to os.Stderr
	Output io.Writer
	// AddSource adds file:line to records
	AddSource bool
}

// DefaultConfig logs JSON at info to stderr
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		JSON:   true,
		Output: os.Stderr,
	}
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
}

var global *Logger

// New creates a logger. The first logger created also becomes the global one.
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	l := &Logger{Logger: slog.New(handler)}
	if global == nil {
		global = l
	}
	return l
}

// Discard returns a logger that drops everything; handy in tests
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch LogLevel(strings.ToLower(level)) {
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

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	global = logger
}

// GetGlobal returns the global logger, creating a default one if needed
func GetGlobal() *Logger {
	if global == nil {
		return New(DefaultConfig())
	}
	return global
}

// LogError logs err with msg and extra key/value pairs
func (l *Logger) LogError(err error, msg string, args ...any) {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	l.Error(msg, append([]any{"error", errText}, args...)...)
}

// WithRequestID tags every record with the request id
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.With("request_id", requestID)}
}

// WithActor tags records with the authenticated admin subject
func (l *Logger) WithActor(subject string) *Logger {
	if subject == "" {
		return l
	}
	return &Logger{Logger: l.With("actor", subject)}
}

// WithComponent tags records with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With("component", name)}
}

// LogRequest logs a finished HTTP request
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration, size int) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"bytes", size,
	)
}

type requestIDKey struct{}

// ContextWithRequestID stores the request id so code below the HTTP layer
// can tag its records
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromCtx returns base tagged with the request id carried by ctx
func FromCtx(ctx context.Context, base *Logger) *Logger {
	if base == nil {
		base = GetGlobal()
	}
	return base.WithRequestID(RequestIDFromContext(ctx))
}
