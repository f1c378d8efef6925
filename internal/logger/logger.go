// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and provides
// playback session ID propagation through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const sessionIDKey ctxKey = "session_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values yield Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSessionID returns a fresh playback session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// WithSessionID stores a session ID in the context for downstream propagation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the session ID from context. Returns "" if not set.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// LogWithSession returns slog attributes including the session ID from context.
// Usage: slog.Info("msg", logger.LogWithSession(ctx)...)
func LogWithSession(ctx context.Context) []any {
	sid := SessionID(ctx)
	if sid == "" {
		return nil
	}
	return []any{slog.String("session_id", sid)}
}
