// Package slogger provides the application's structured logging helpers.
// Log entries are JSON by default and carry the correlation ID found in the
// request context, so one chunk's path through dispatch, processing and
// persistence can be stitched together.
package slogger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Fields represents structured logging fields.
type Fields map[string]any

type contextKey string

// correlationIDKey carries the correlation ID through context.
const correlationIDKey contextKey = "correlation_id"

var (
	loggerMu sync.RWMutex
	logger   = newLogger(os.Stdout, "info", "json")
)

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Configure replaces the package logger. Called once at process start from
// the root command; safe to call again from tests.
func Configure(w io.Writer, level, format string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = newLogger(w, level, format)
}

func get() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// EnsureCorrelationID returns a context that carries a correlation ID,
// minting a new one if the context has none, plus the ID in effect.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithCorrelationID(ctx, id), id
}

// CorrelationID returns the correlation ID carried by the context, or "".
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

func attrs(ctx context.Context, fields Fields) []any {
	out := make([]any, 0, 2*len(fields)+2)
	if id := CorrelationID(ctx); id != "" {
		out = append(out, "correlation_id", id)
	}
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	get().DebugContext(ctx, msg, attrs(ctx, fields)...)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	get().InfoContext(ctx, msg, attrs(ctx, fields)...)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	get().WarnContext(ctx, msg, attrs(ctx, fields)...)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	get().ErrorContext(ctx, msg, attrs(ctx, fields)...)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	Error(ctx, msg, fields)
}

// InfoNoCtx logs an info message without request context (startup paths).
func InfoNoCtx(msg string, fields Fields) {
	Info(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without request context (startup paths).
func ErrorNoCtx(msg string, fields Fields) {
	Error(context.Background(), msg, fields)
}
