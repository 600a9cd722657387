package logging

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey int

const (
	callIDKey contextKey = iota
	loggerKey
)

// WithCallIDCtx returns a new context with the call ID set.
func WithCallIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// CallIDFromCtx extracts the call ID from the context.
func CallIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromCtx returns a logger from the context. If none is found, returns the
// global logger configured with the context's call ID, if any.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	l := Global()
	if id := CallIDFromCtx(ctx); id != "" {
		l = l.WithCallID(id)
	}
	return l
}
