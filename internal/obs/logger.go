// Package obs provides the logging, metrics, and correlation-id helpers
// shared by internal packages. Domain packages take a *ComponentMetrics
// through a WithMetrics option; the agent registry and the vision describer
// also take a *slog.Logger through WithLogger, following the teacher's
// WithLogger(*slog.Logger) convention (grounded on pkg/retrievers/retrievers.go).
package obs

import (
	"context"
	"log/slog"
	"os"
)

// NewLogger builds the default structured logger: JSON output to stderr at
// the given level. Components that receive no explicit logger via their
// WithLogger option fall back to slog.Default(), matching the teacher's
// convention; cmd/ragd calls NewLogger once at startup and installs it with
// slog.SetDefault.
func NewLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying id, retrievable by CorrelationID.
// No entry point in this module stamps a correlation id, and apperr errors
// carry no field for one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the correlation id stored in ctx, or "" if none was set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// LoggerWithCorrelation returns logger with a "correlation_id" attribute
// attached when ctx carries one, otherwise returns logger unchanged.
func LoggerWithCorrelation(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := CorrelationID(ctx); id != "" {
		return logger.With("correlation_id", id)
	}
	return logger
}
