// Package logger configures the process-wide slog logger and provides
// context helpers for request- and claim-scoped logging.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type requestIDKey struct{}
type claimIDKey struct{}

// Setup installs the default slog logger with the given level and format
// ("json" or "text").
func Setup(level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID stores a request id for FromContext to pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithClaimID stores a claim id so every log line emitted while handling a
// claim can be correlated with it.
func WithClaimID(ctx context.Context, claimID string) context.Context {
	return context.WithValue(ctx, claimIDKey{}, claimID)
}

// FromContext returns the default logger annotated with any request or claim
// id carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	if claimID, ok := ctx.Value(claimIDKey{}).(string); ok {
		logger = logger.With("claim_id", claimID)
	}
	return logger
}

// WithComponent returns the default logger scoped to a named component.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
