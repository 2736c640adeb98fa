package xcontext

import "context"

type shutdownInProgressKey struct{}

type shutdownSignalKey struct{}

// SetShutdownInProgress marks the context as being in a shutdown state.
// This allows handlers to distinguish between normal client disconnects
// and server-initiated shutdowns for better logging and cleanup.
func SetShutdownInProgress(ctx context.Context, inProgress bool) context.Context {
	return context.WithValue(ctx, shutdownInProgressKey{}, inProgress)
}

// WithShutdownSignal attaches a channel that is closed once the server starts
// shutting down. Requests already in flight observe it through
// IsShutdownInProgress.
func WithShutdownSignal(ctx context.Context, done <-chan struct{}) context.Context {
	return context.WithValue(ctx, shutdownSignalKey{}, done)
}

// IsShutdownInProgress checks if the context is marked as being in a shutdown
// state, either explicitly or through a closed shutdown signal.
func IsShutdownInProgress(ctx context.Context) bool {
	if inProgress, ok := ctx.Value(shutdownInProgressKey{}).(bool); ok && inProgress {
		return true
	}
	done, ok := ctx.Value(shutdownSignalKey{}).(<-chan struct{})
	if !ok {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}
