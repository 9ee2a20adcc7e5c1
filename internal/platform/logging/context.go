package logging

import (
	"context"
	"log/slog"
)

// Attribute keys shared by every component that logs a request.
const (
	KeyRequestID     = "request_id"
	KeyCorrelationID = "correlation_id"
	KeyClient        = "client"
)

type ctxKey struct{}

var defaultLogger = slog.Default()

// FromContext returns the logger carried by ctx, falling back to the
// process default when ctx is nil or has none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return logger
		}
	}

	return defaultLogger
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// With returns ctx carrying FromContext(ctx) extended with args, which are
// interpreted as by slog.Logger.With.
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// Enricher returns a function that tags the context logger with key=value.
// The ID middleware chains these per header.
func Enricher(key string) func(context.Context, string) context.Context {
	return func(ctx context.Context, value string) context.Context {
		return With(ctx, slog.String(key, value))
	}
}

// WithClient tags the context logger with the display a request is for,
// so upstream calls made while serving it can be traced back.
func WithClient(ctx context.Context, name string) context.Context {
	return With(ctx, slog.String(KeyClient, name))
}

// SetDefault replaces the fallback logger and slog's default.
func SetDefault(logger *slog.Logger) {
	defaultLogger = logger
	slog.SetDefault(logger)
}
