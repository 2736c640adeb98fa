package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

var _ realtime.Transport = (*Transport)(nil)

// Transport serves realtime subscriptions from a Feed, applying the
// descriptor's row filter and event mask.
type Transport struct {
	feed   Feed
	logger *slog.Logger
}

func NewTransport(feed Feed, logger *slog.Logger) *Transport {
	return &Transport{feed: feed, logger: logger}
}

func (t *Transport) Subscribe(ctx context.Context, d realtime.Descriptor) (realtime.Stream, error) {
	filter, err := realtime.ParseFilter(d.Filter)
	if err != nil {
		return nil, err
	}

	key := d.Key()
	src, unsubscribe, err := t.feed.Subscribe(ctx, key.Topic())
	if err != nil {
		return nil, err
	}

	s := &stream{
		events:      make(chan realtime.Event),
		done:        make(chan struct{}),
		unsubscribe: unsubscribe,
	}
	go s.run(ctx, src, filter, d.Events, t.logger.With(xslog.ChannelKey(key.String())))
	return s, nil
}

type stream struct {
	events      chan realtime.Event
	done        chan struct{}
	unsubscribe func()
	closeOnce   sync.Once

	mu  sync.Mutex
	err error
}

func (s *stream) run(ctx context.Context, src <-chan realtime.Event, filter realtime.Filter, mask realtime.EventMask, logger *slog.Logger) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		case <-s.done:
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			if !mask.Has(ev.Type) {
				continue
			}
			match, err := filter.MatchEvent(ev)
			if err != nil {
				logger.WarnContext(ctx, "failed to match event", xslog.EventType(string(ev.Type)), xslog.Error(err))
				continue
			}
			if !match {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			case <-ctx.Done():
				s.setErr(ctx.Err())
				return
			}
		}
	}
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stream) Events() <-chan realtime.Event { return s.events }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.unsubscribe()
	})
	return nil
}
