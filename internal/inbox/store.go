package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/garrettladley/noticeboard/internal/alert"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const DefaultNewWindow = 5 * time.Second

var (
	ErrClosed              = errors.New("inbox closed")
	ErrUnknownNotification = errors.New("notification not in inbox")
)

type Reader interface {
	List(ctx context.Context, ownerID string, limit int) ([]storage.Notification, error)
}

type Mutator interface {
	Update(ctx context.Context, id string, p storage.Patch) (storage.Notification, error)
	UpdateMany(ctx context.Context, ownerID string, m storage.Match, p storage.Patch) ([]storage.Notification, error)
	Delete(ctx context.Context, id string) (storage.Notification, error)
}

// Item is a notification as the inbox presents it.
type Item struct {
	storage.Notification
	IsNew    bool   `json:"is_new"`
	AgeLabel string `json:"age_label"`
}

type eventKind int

const (
	created eventKind = iota
	updated
	deleted
)

type pendingEvent struct {
	kind eventKind
	n    storage.Notification
	id   string
}

type entry struct {
	n     storage.Notification
	isNew bool
}

type scheduled struct {
	timer Timer
	seq   uint64
}

// Store keeps one owner's notifications ordered newest first and consistent
// with snapshot loads, live change events and confirmed mutations.
//
// Until the first Load completes, and while any Load is in flight, live
// events are buffered and replayed onto the loaded snapshot in arrival order.
// Rows created before the first Load completes are part of the initial state
// and do not alert.
type Store struct {
	owner   string
	reader  Reader
	mutator Mutator
	sink    alert.Sink
	sched   Scheduler
	now     func() time.Time
	window  time.Duration
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	entries   []entry
	timers    map[string]scheduled
	timerSeq  uint64
	alerted   map[string]struct{}
	buffering bool
	buffer    []pendingEvent
	loaded    bool
	loadGen   uint64
	closed    bool
	changes   chan struct{}
}

type Option func(*Store)

func WithAlertSink(sink alert.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Store) { s.sched = sched }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNewWindow sets how long a live-created notification stays new.
func WithNewWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(owner string, reader Reader, mutator Mutator, opts ...Option) *Store {
	s := &Store{
		owner:     owner,
		reader:    reader,
		mutator:   mutator,
		sink:      alert.Discard,
		sched:     realScheduler{},
		now:       time.Now,
		window:    DefaultNewWindow,
		logger:    slog.Default(),
		timers:    make(map[string]scheduled),
		alerted:   make(map[string]struct{}),
		buffering: true,
		changes:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(xslog.OwnerID(owner))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Store) Owner() string { return s.owner }

// Load replaces the list with the owner's newest notifications, then replays
// events that arrived while the fetch was in flight. On failure the list is
// left as it was and the buffered events are applied to it. A load superseded
// by a later one returns the current items without installing its result.
func (s *Store) Load(ctx context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.loadGen++
	gen := s.loadGen
	s.buffering = true
	s.mu.Unlock()

	ns, err := s.reader.List(ctx, s.owner, limit)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if gen != s.loadGen {
		items := s.itemsLocked()
		s.mu.Unlock()
		return items, nil
	}

	if err == nil {
		s.installLocked(ns)
	}
	alerts := s.replayLocked(s.loaded)
	s.loaded = true
	items := s.itemsLocked()
	s.mu.Unlock()

	s.signal()
	s.fire(alerts)

	if err != nil {
		s.logger.WarnContext(ctx, "failed to load notifications", xslog.Error(err))
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	return items, nil
}

func (s *Store) installLocked(ns []storage.Notification) {
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}

	seen := make(map[string]struct{}, len(ns))
	s.entries = make([]entry, 0, len(ns))
	for _, n := range ns {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		s.entries = append(s.entries, entry{n: n})
	}
	s.sortLocked()
}

// replayLocked applies the buffered events. With notify false, created rows
// are recorded as alerted without being returned.
func (s *Store) replayLocked(notify bool) []storage.Notification {
	var alerts []storage.Notification
	for _, ev := range s.buffer {
		if n, ok := s.applyLocked(ev); ok && notify {
			alerts = append(alerts, n)
		}
	}
	s.buffer = nil
	s.buffering = false
	return alerts
}

// ApplyCreated inserts a live-created notification unless its id is already
// present, marks it new for the configured window and alerts once per id.
func (s *Store) ApplyCreated(n storage.Notification) {
	s.apply(pendingEvent{kind: created, n: n, id: n.ID})
}

// ApplyUpdated replaces the stored notification with the same id. Unknown ids
// are ignored. The read flag and read time are made consistent the way a
// storage.Patch is.
func (s *Store) ApplyUpdated(n storage.Notification) {
	s.apply(pendingEvent{kind: updated, n: n, id: n.ID})
}

// ApplyDeleted removes the notification with id, if present.
func (s *Store) ApplyDeleted(id string) {
	s.apply(pendingEvent{kind: deleted, id: id})
}

func (s *Store) apply(ev pendingEvent) {
	if ev.id == "" {
		return
	}
	if ev.kind != deleted && ev.n.OwnerID != "" && ev.n.OwnerID != s.owner {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.buffering {
		s.buffer = append(s.buffer, ev)
		s.mu.Unlock()
		return
	}
	n, alertIt := s.applyLocked(ev)
	s.mu.Unlock()

	s.signal()
	if alertIt {
		s.fire([]storage.Notification{n})
	}
}

// applyLocked applies one event and reports whether it calls for an alert.
func (s *Store) applyLocked(ev pendingEvent) (storage.Notification, bool) {
	switch ev.kind {
	case created:
		if s.indexLocked(ev.id) >= 0 {
			return storage.Notification{}, false
		}
		s.entries = append(s.entries, entry{n: ev.n, isNew: true})
		s.sortLocked()
		s.scheduleLocked(ev.id)

		if _, ok := s.alerted[ev.id]; ok {
			return storage.Notification{}, false
		}
		s.alerted[ev.id] = struct{}{}
		return ev.n, true

	case updated:
		i := s.indexLocked(ev.id)
		if i < 0 {
			return storage.Notification{}, false
		}
		s.entries[i].n = normalizeRead(ev.n, s.entries[i].n, s.now().UTC())
		s.sortLocked()

	case deleted:
		s.removeLocked(ev.id)
	}
	return storage.Notification{}, false
}

// normalizeRead keeps read_at consistent with is_read on an updated row. A
// read row without a read time keeps the previous one, or is stamped now.
func normalizeRead(n, prev storage.Notification, now time.Time) storage.Notification {
	read := n.IsRead
	p := storage.Patch{IsRead: &read, ReadAt: n.ReadAt}
	if read && n.ReadAt == nil && prev.IsRead {
		p.ReadAt = prev.ReadAt
	}
	return p.Normalize(now).Apply(n)
}

func (s *Store) scheduleLocked(id string) {
	s.timerSeq++
	seq := s.timerSeq
	s.timers[id] = scheduled{
		timer: s.sched.AfterFunc(s.window, func() { s.expire(id, seq) }),
		seq:   seq,
	}
}

func (s *Store) expire(id string, seq uint64) {
	s.mu.Lock()
	t, ok := s.timers[id]
	if s.closed || !ok || t.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	if i := s.indexLocked(id); i >= 0 {
		s.entries[i].isNew = false
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Store) removeLocked(id string) bool {
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	if t, ok := s.timers[id]; ok {
		t.timer.Stop()
		delete(s.timers, id)
	}
	return true
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.entries, func(e entry) bool { return e.n.ID == id })
}

func (s *Store) sortLocked() {
	slices.SortFunc(s.entries, func(a, b entry) int { return storage.Compare(a.n, b.n) })
}

// MarkRead marks one notification read remotely and, once confirmed, locally.
// On failure the local entry is unchanged.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	alreadyRead := s.entries[i].n.IsRead
	s.mu.RUnlock()
	if alreadyRead {
		return nil
	}

	patch := storage.MarkRead(s.now().UTC())
	if _, err := s.mutator.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if i := s.indexLocked(id); i >= 0 {
		s.entries[i].n = patch.Apply(s.entries[i].n)
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

// MarkAllRead marks every unread notification of the owner read remotely and,
// once confirmed, locally. On failure nothing changes locally.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	unread := make(map[string]struct{})
	for _, e := range s.entries {
		if !e.n.IsRead {
			unread[e.n.ID] = struct{}{}
		}
	}
	s.mu.RUnlock()

	patch := storage.MarkRead(s.now().UTC())
	changed, err := s.mutator.UpdateMany(ctx, s.owner, storage.Match{UnreadOnly: true}, patch)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	for _, n := range changed {
		unread[n.ID] = struct{}{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for i := range s.entries {
		if _, ok := unread[s.entries[i].n.ID]; ok && !s.entries[i].n.IsRead {
			s.entries[i].n = patch.Apply(s.entries[i].n)
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

// Delete removes a notification remotely and, once confirmed, locally. A
// notification already gone remotely is removed locally too.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	known := s.indexLocked(id) >= 0
	s.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}

	if _, err := s.mutator.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if removed {
		s.signal()
	}
	return nil
}

// UnreadCount is the number of unread notifications in the list.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, e := range s.entries {
		if !e.n.IsRead {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Items returns a copy of the list, newest first, with derived fields
// computed at the current time.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsLocked()
}

func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Item{}, false
	}
	return s.itemLocked(s.entries[i], s.now()), true
}

func (s *Store) itemsLocked() []Item {
	now := s.now()
	items := make([]Item, 0, len(s.entries))
	for _, e := range s.entries {
		items = append(items, s.itemLocked(e, now))
	}
	return items
}

func (s *Store) itemLocked(e entry, now time.Time) Item {
	n := e.n
	if n.Metadata != nil {
		n.Metadata = maps.Clone(n.Metadata)
	}
	return Item{
		Notification: n,
		IsNew:        e.isNew,
		AgeLabel:     AgeLabel(now, n.CreatedAt),
	}
}

// Changes delivers a signal after the list changes. Signals coalesce; the
// channel is closed by Close.
func (s *Store) Changes() <-chan struct{} { return s.changes }

func (s *Store) signal() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) fire(alerts []storage.Notification) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	for _, n := range alerts {
		var body string
		if n.Body != nil {
			body = *n.Body
		}
		if err := s.sink.Notify(s.ctx, n.Title, body); err != nil {
			s.logger.WarnContext(s.ctx, "failed to send alert", xslog.NotificationID(n.ID), xslog.Error(err))
		}
	}
}

// Close cancels pending expiry timers and discards later events, load
// results and mutation confirmations. It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
	s.buffer = nil
	s.cancel()
	close(s.changes)
}
