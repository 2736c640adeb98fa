package server

import (
	"context"
	"time"

	"github.com/garrettladley/noticeboard/internal/xcontext"
)

// ShutdownCoordinator manages graceful shutdown of the HTTP server,
// particularly for long-lived realtime streams.
type ShutdownCoordinator struct {
	baseCtx     context.Context
	cancel      context.CancelFunc
	gracePeriod time.Duration
}

// NewShutdownCoordinator creates a new shutdown coordinator with the specified grace period.
// The grace period determines how long to wait for active streams to close
// gracefully before calling server.Shutdown().
func NewShutdownCoordinator(gracePeriod time.Duration) *ShutdownCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownCoordinator{
		baseCtx:     xcontext.WithShutdownSignal(ctx, ctx.Done()),
		cancel:      cancel,
		gracePeriod: gracePeriod,
	}
}

// BaseContext returns the base context for all HTTP requests.
// This context is cancelled when shutdown is initiated, and requests derived
// from it report IsShutdownInProgress from then on.
func (sc *ShutdownCoordinator) BaseContext() context.Context {
	return sc.baseCtx
}

// InitiateShutdown cancels the base context and waits for the grace period,
// giving active streams time to send a final shutdown event.
//
// This function blocks for the duration of the grace period.
func (sc *ShutdownCoordinator) InitiateShutdown() {
	sc.cancel()
	time.Sleep(sc.gracePeriod)
}
