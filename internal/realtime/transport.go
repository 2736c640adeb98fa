package realtime

import "context"

// Transport is a live event source. Subscribe blocks until the subscription is
// acknowledged or fails; ctx bounds the whole subscription, so cancelling it
// ends the stream.
type Transport interface {
	Subscribe(ctx context.Context, d Descriptor) (Stream, error)
}

// Stream delivers events in transport order until it ends. Events is closed
// when the stream ends; Err then reports why (nil for a clean remote close).
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}
