// Package logging is a thin slog front end. Console output uses the compact
// handler; JSON output is available for log shippers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace is below Debug and reserved for per-field reconciliation detail.
const LevelTrace = slog.LevelDebug - 4

type contextKey string

const requestIDKey contextKey = "requestID"

var logger atomic.Pointer[slog.Logger]

func init() {
	Configure(os.Stderr, slog.LevelInfo, false)
}

// Configure replaces the package logger.
func Configure(w io.Writer, level slog.Level, json bool) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = NewCompactHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// SetLevel switches to compact console output at level.
func SetLevel(level slog.Level) {
	Configure(os.Stderr, level, false)
}

// SetJSONOutput switches to JSON output at level.
func SetJSONOutput(level slog.Level) {
	Configure(os.Stderr, level, true)
}

// ParseLevel maps a level name to its slog level. The empty string is Info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// VerboseLevel lowers level by one step per -v flag, down to Trace.
func VerboseLevel(level slog.Level, count int) slog.Level {
	level -= slog.Level(4 * count)
	return max(level, LevelTrace)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func withRequestID(ctx context.Context, args []any) []any {
	if id := GetRequestID(ctx); id != "" {
		return append([]any{"requestID", id}, args...)
	}
	return args
}

func log(ctx context.Context, level slog.Level, msg string, args []any) {
	logger.Load().Log(ctx, level, msg, withRequestID(ctx, args)...)
}

// Trace logs per-field reconciliation detail.
func Trace(msg string, args ...any) { log(context.Background(), LevelTrace, msg, args) }

// TraceContext is Trace with the request ID of ctx.
func TraceContext(ctx context.Context, msg string, args ...any) { log(ctx, LevelTrace, msg, args) }

// Debug logs graph mutations.
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// DebugContext is Debug with the request ID of ctx.
func DebugContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

// Info logs user-facing operations.
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// InfoContext is Info with the request ID of ctx.
func InfoContext(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelInfo, msg, args) }

// Warn logs recovered problems such as dangling node references.
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// WarnContext is Warn with the request ID of ctx.
func WarnContext(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelWarn, msg, args) }

// Error logs failures the caller could not recover from.
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// ErrorContext is Error with the request ID of ctx.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}

// Fatal logs at Error and exits.
func Fatal(msg string, args ...any) {
	Error(msg, args...)
	os.Exit(1)
}

// FatalContext logs at Error with the request ID of ctx and exits.
func FatalContext(ctx context.Context, msg string, args ...any) {
	ErrorContext(ctx, msg, args...)
	os.Exit(1)
}
