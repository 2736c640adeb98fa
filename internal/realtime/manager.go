package realtime

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrManagerClosed = errors.New("realtime manager closed")

// Manager multiplexes subscriptions onto channels. Subscriptions with equal
// keys share one channel and one transport subscription.
type Manager struct {
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics

	mu       sync.Mutex
	channels map[Key]*channel
	nextID   uint64
	closed   bool
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func NewManager(transport Transport, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		logger:    slog.Default(),
		channels:  make(map[Key]*channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers handlers for the descriptor and returns at once; the
// connection is made in the background. A disabled subscription makes no
// transport call and stays disconnected until Resubscribe is called on an
// enabled handle.
func (m *Manager) Subscribe(d Descriptor, h Handlers, enabled bool) *Handle {
	handle := &Handle{
		manager:  m,
		desc:     d,
		handlers: h,
		enabled:  enabled,
	}
	if enabled {
		handle.attach()
	}
	return handle
}

// Len reports the number of open channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Close tears down every channel. Later subscriptions fail with
// ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	channels := make([]*channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	clear(m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.close()
		m.metrics.channelClosed()
	}
}

// acquire attaches a listener to the channel for d, creating the channel if
// needed. The caller connects a newly created channel and revives an ended one.
func (m *Manager) acquire(d Descriptor, h Handlers) (*channel, *listener, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, false, ErrManagerClosed
	}

	key := d.Key()
	ch, ok := m.channels[key]
	if !ok {
		ch = newChannel(key, m.transport, m.logger, m.metrics)
		m.channels[key] = ch
		m.metrics.channelOpened()
	}

	m.nextID++
	l := newListener(m.nextID, d.Events, h)
	ch.add(l)
	return ch, l, !ok, nil
}

func (m *Manager) release(ch *channel, l *listener) {
	l.deactivate()

	m.mu.Lock()
	last := ch.remove(l.id) == 0 && m.channels[ch.key] == ch
	if last {
		delete(m.channels, ch.key)
	}
	m.mu.Unlock()

	if last {
		ch.close()
		m.metrics.channelClosed()
	}
}

// Handle is one listener's registration with a Manager.
type Handle struct {
	manager  *Manager
	desc     Descriptor
	handlers Handlers
	enabled  bool

	mu       sync.Mutex
	ch       *channel
	listener *listener
	err      error
}

func (h *Handle) attach() {
	h.mu.Lock()
	if h.ch != nil {
		h.mu.Unlock()
		return
	}
	if err := h.desc.Validate(); err != nil {
		h.err = err
		h.mu.Unlock()
		return
	}
	ch, l, created, err := h.manager.acquire(h.desc, h.handlers)
	if err != nil {
		h.err = err
		h.mu.Unlock()
		return
	}
	h.ch, h.listener, h.err = ch, l, nil
	h.mu.Unlock()

	if created {
		ch.connect()
		return
	}
	ch.revive()
}

func (h *Handle) Descriptor() Descriptor { return h.desc }

func (h *Handle) Enabled() bool { return h.enabled }

// Attached reports whether the handle currently holds a listener on a channel.
func (h *Handle) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ch != nil
}

// Status is the state of the handle's channel, or disconnected when the
// handle is not attached.
func (h *Handle) Status() Status {
	s, _ := h.state()
	return s
}

// Err is the last failure seen by the handle's channel.
func (h *Handle) Err() error {
	_, err := h.state()
	return err
}

func (h *Handle) state() (Status, error) {
	h.mu.Lock()
	ch, err := h.ch, h.err
	h.mu.Unlock()
	if err != nil {
		return StatusError, err
	}
	if ch == nil {
		return StatusDisconnected, nil
	}
	return ch.Status()
}

// Unsubscribe detaches the listener and waits for any of its callbacks in
// flight; no callback runs after it returns. It must not be called from the
// handle's own callbacks. The channel closes when its last listener leaves.
// Calling it again is a no-op.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	ch, l := h.ch, h.listener
	h.ch, h.listener = nil, nil
	h.mu.Unlock()
	if ch == nil {
		return
	}
	h.manager.release(ch, l)
}

// Resubscribe reconnects the handle's channel, or registers the handle again
// if it was unsubscribed. It is a no-op for a disabled handle.
func (h *Handle) Resubscribe() {
	if !h.enabled {
		return
	}
	h.mu.Lock()
	ch := h.ch
	h.mu.Unlock()
	if ch == nil {
		h.attach()
		return
	}
	ch.connect()
}
