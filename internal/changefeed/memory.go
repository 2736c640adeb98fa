package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const memoryBuffer = 256

var _ Feed = (*Memory)(nil)

// Memory is an in-process Feed. A subscriber that falls a full buffer behind
// loses events, as with Redis pub/sub.
type Memory struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]chan realtime.Event
	nextID uint64
	closed bool
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger: logger,
		subs:   make(map[string]map[uint64]chan realtime.Event),
	}
}

func (m *Memory) Publish(ctx context.Context, ev realtime.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	topic := ev.Topic()
	for _, ch := range m.subs[topic] {
		select {
		case ch <- ev:
		default:
			m.logger.WarnContext(ctx, "dropping event for slow subscriber", xslog.Topic(topic))
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topic string) (<-chan realtime.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}

	m.nextID++
	id := m.nextID
	ch := make(chan realtime.Event, memoryBuffer)
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[uint64]chan realtime.Event)
	}
	m.subs[topic][id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[topic][id]; !ok {
				return
			}
			delete(m.subs[topic], id)
			if len(m.subs[topic]) == 0 {
				delete(m.subs, topic)
			}
			close(ch)
		})
	}
	return ch, unsubscribe, nil
}

// Subscribers reports the number of live subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for topic, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}
