package realtime

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/garrettladley/noticeboard/internal/xslog"
)

// Handlers are the callbacks of one listener. Any of them may be nil. For each
// event the type-specific handler runs first, then OnEvent.
type Handlers struct {
	OnCreated func(Event)
	OnUpdated func(Event)
	OnDeleted func(Event)
	OnEvent   func(Event)
	OnStatus  func(Status, error)
}

// listener callbacks run under mu, so deactivate returns only after any
// callback in flight has finished.
type listener struct {
	id       uint64
	mask     EventMask
	handlers Handlers

	mu     sync.Mutex
	active bool
}

func newListener(id uint64, mask EventMask, h Handlers) *listener {
	return &listener{id: id, mask: mask, handlers: h, active: true}
}

// deactivate stops later callbacks. It must not be called from one of the
// listener's own callbacks.
func (l *listener) deactivate() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
}

func (l *listener) deliver(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || !l.mask.Has(ev.Type) {
		return
	}
	var typed func(Event)
	switch ev.Type {
	case EventCreated:
		typed = l.handlers.OnCreated
	case EventUpdated:
		typed = l.handlers.OnUpdated
	case EventDeleted:
		typed = l.handlers.OnDeleted
	}
	if typed != nil {
		typed(ev)
	}
	if l.handlers.OnEvent != nil {
		l.handlers.OnEvent(ev)
	}
}

func (l *listener) status(s Status, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active && l.handlers.OnStatus != nil {
		l.handlers.OnStatus(s, err)
	}
}

// channel owns one transport subscription and fans its events out to every
// attached listener. Each connection attempt runs under a generation number;
// results from a superseded generation are dropped.
type channel struct {
	key       Key
	desc      Descriptor
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics

	mu        sync.Mutex
	status    Status
	err       error
	gen       uint64
	cancel    context.CancelFunc
	listeners map[uint64]*listener
	closed    bool
}

func newChannel(key Key, transport Transport, logger *slog.Logger, metrics *Metrics) *channel {
	return &channel{
		key: key,
		desc: Descriptor{
			Namespace: key.Namespace,
			Resource:  key.Resource,
			Filter:    key.Filter,
			Events:    MaskAny,
		},
		transport: transport,
		logger:    logger.With(xslog.ChannelKey(key.String())),
		metrics:   metrics,
		status:    StatusDisconnected,
		listeners: make(map[uint64]*listener),
	}
}

func (c *channel) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.err
}

func (c *channel) add(l *listener) {
	c.mu.Lock()
	c.listeners[l.id] = l
	c.mu.Unlock()
}

func (c *channel) remove(id uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
	return len(c.listeners)
}

// connect tears down any current connection and starts a new attempt.
func (c *channel) connect() { c.start(false) }

// revive starts a new attempt only when the last one has ended, either
// cleanly or with an error. A channel that was never connected is left to
// the listener that created it.
func (c *channel) revive() { c.start(true) }

func (c *channel) start(onlyEnded bool) {
	c.mu.Lock()
	if c.closed || (onlyEnded && !c.endedLocked()) {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	notify := c.setLocked(StatusConnecting, nil)
	c.mu.Unlock()

	notify()
	go c.run(ctx, gen)
}

func (c *channel) endedLocked() bool {
	return c.gen > 0 && (c.status == StatusDisconnected || c.status == StatusError)
}

// close ends the channel for good. Listeners are not notified; close returns
// once their in-flight callbacks have finished.
func (c *channel) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopLocked()
	ls := c.snapshotLocked()
	c.setLocked(StatusDisconnected, nil)
	c.mu.Unlock()

	for _, l := range ls {
		l.deactivate()
	}
}

func (c *channel) stopLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *channel) run(ctx context.Context, gen uint64) {
	stream, err := c.transport.Subscribe(ctx, c.desc)
	if err != nil {
		c.finish(gen, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			c.logger.Debug("failed to close stream", xslog.Error(err))
		}
	}()

	if !c.transition(gen, StatusConnected, nil) {
		return
	}

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.finish(gen, stream.Err())
				return
			}
			c.dispatch(gen, ev)
		}
	}
}

// finish records the end of a connection. A clean end is a disconnect; an
// error moves the channel to the error state.
func (c *channel) finish(gen uint64, err error) {
	if errors.Is(err, context.Canceled) {
		c.mu.Lock()
		stale := gen != c.gen || c.closed
		c.mu.Unlock()
		if stale {
			return
		}
	}
	if err != nil {
		c.logger.Warn("realtime channel failed", xslog.Error(err))
		c.transition(gen, StatusError, err)
		return
	}
	c.logger.Debug("realtime channel closed by remote")
	c.transition(gen, StatusDisconnected, nil)
}

func (c *channel) transition(gen uint64, s Status, err error) bool {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return false
	}
	notify := c.setLocked(s, err)
	c.mu.Unlock()
	notify()
	return true
}

// setLocked updates the status and returns a func that notifies the
// listeners. The caller runs it after releasing the lock.
func (c *channel) setLocked(s Status, err error) func() {
	if c.status == s && c.err == err {
		return func() {}
	}
	c.status, c.err = s, err
	c.metrics.transition(s)
	c.logger.Debug("realtime channel status", xslog.Status(string(s)))
	ls := c.snapshotLocked()
	return func() {
		for _, l := range ls {
			l.status(s, err)
		}
	}
}

func (c *channel) snapshotLocked() []*listener {
	ls := make([]*listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	slices.SortFunc(ls, func(a, b *listener) int { return cmp.Compare(a.id, b.id) })
	return ls
}

func (c *channel) dispatch(gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	ls := c.snapshotLocked()
	c.mu.Unlock()

	c.metrics.event(ev.Type)
	for _, l := range ls {
		l.deliver(ev)
	}
}
