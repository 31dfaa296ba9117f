package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ctxKey is the private context key for request-scoped loggers.
type ctxKey struct{}

// EchoKey is the echo context key the request id middleware stores the
// request-scoped logger under.
const EchoKey = "logger"

// WithContext returns a context carrying the given logger
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the request-scoped logger, or the process logger when
// the context carries none (background sweeps, tests).
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return log
	}
	return GetLogger()
}

// FromEcho returns the request-scoped logger stored on the echo context, or
// the process logger when the middleware has not run.
func FromEcho(c echo.Context) *zap.Logger {
	if log, ok := c.Get(EchoKey).(*zap.Logger); ok {
		return log
	}
	return GetLogger()
}
