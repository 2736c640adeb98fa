package changefeed

import (
	"context"
	"errors"

	"github.com/garrettladley/noticeboard/internal/realtime"
)

var ErrClosed = errors.New("changefeed closed")

// Feed carries change events between the process that writes rows and the
// processes that stream them to clients. Topics are realtime.Key.Topic values.
type Feed interface {
	Publish(ctx context.Context, ev realtime.Event) error

	// Subscribe returns a channel that receives events published on topic.
	// The channel is closed when the subscription ends. The returned function
	// should be called to unsubscribe.
	Subscribe(ctx context.Context, topic string) (<-chan realtime.Event, func(), error)

	Close() error
}
