package observability

import (
	"context"

	"go.uber.org/zap"
)

// Context keys set by the HTTP correlation middleware.
const (
	loggerKey        = "logger"
	correlationIDKey = "correlation_id"
)

// WithRequestLogger stores the request-scoped logger and correlation ID in ctx.
func WithRequestLogger(ctx context.Context, logger *zap.Logger, corrID string) context.Context {
	ctx = context.WithValue(ctx, correlationIDKey, corrID)
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the request-scoped logger, or a no-op logger outside a request.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// CorrelationIDFromContext returns the request correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if corrID, ok := ctx.Value(correlationIDKey).(string); ok {
		return corrID
	}
	return ""
}
