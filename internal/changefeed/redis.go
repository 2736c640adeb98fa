package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

var _ Feed = (*Redis)(nil)

// Redis is a Feed over Redis pub/sub. Each topic is one Redis channel.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Publish(ctx context.Context, ev realtime.Event) error {
	data, err := go_json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, ev.Topic(), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan realtime.Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, topic)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan realtime.Event)

	go func() {
		defer close(events)

		for msg := range pubsub.Channel() {
			var ev realtime.Event
			if err := go_json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.WarnContext(ctx, "failed to decode event", xslog.Topic(topic), xslog.Error(err))
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = pubsub.Close()
	}

	return events, unsubscribe, nil
}

// Close is a no-op; the client is owned by the caller.
func (r *Redis) Close() error { return nil }
