package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/garrettladley/noticeboard/internal/xslog"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2
	pollInterval   = 250 * time.Millisecond
)

type ReconnectOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PollInterval   time.Duration
	Logger         *slog.Logger
}

func (o *ReconnectOptions) defaults() {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = initialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = maxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.PollInterval <= 0 {
		o.PollInterval = pollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Reconnect watches the handle and resubscribes it with exponential backoff
// whenever its channel fails or is closed by the remote. It returns when ctx
// is done or the handle is unsubscribed. A handle that could never attach
// returns its error.
func Reconnect(ctx context.Context, h *Handle, opts ReconnectOptions) error {
	opts.defaults()
	backoff := opts.InitialBackoff

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !h.Attached() {
			return h.Err()
		}

		switch h.Status() {
		case StatusConnected:
			backoff = opts.InitialBackoff
			continue
		case StatusConnecting:
			continue
		}

		attrs := []any{xslog.Backoff(backoff)}
		if err := h.Err(); err != nil {
			attrs = append(attrs, xslog.Error(err))
		}
		opts.Logger.WarnContext(ctx, "realtime channel down, reconnecting", attrs...)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		h.Resubscribe()

		backoff *= backoffFactor
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}
