package xslog

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or slog.Default when the
// context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// With returns a context whose logger also carries args.
func With(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// WithOwner scopes the context logger to one owner's notifications.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return With(ctx, OwnerID(ownerID))
}

// WithChannel scopes the context logger to one realtime channel.
func WithChannel(ctx context.Context, key string) context.Context {
	return With(ctx, ChannelKey(key))
}
