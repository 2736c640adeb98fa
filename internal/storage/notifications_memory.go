package storage

import (
	"context"
	"errors"
	"maps"
	"sync"
)

var _ NotificationStore = (*MemoryNotificationStore)(nil)

var ErrStoreClosed = errors.New("store closed")

type MemoryNotificationStore struct {
	opts options
	ids  *idGenerator

	mu     sync.RWMutex
	rows   map[string]Notification
	closed bool
}

func NewMemoryNotificationStore(opts ...Option) *MemoryNotificationStore {
	return &MemoryNotificationStore{
		opts: buildOptions(opts),
		ids:  newIDGenerator(),
		rows: make(map[string]Notification),
	}
}

func (s *MemoryNotificationStore) List(_ context.Context, ownerID string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]Notification, 0)
	for _, n := range s.rows {
		if n.OwnerID == ownerID {
			out = append(out, clone(n))
		}
	}
	Sort(out)
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryNotificationStore) Get(_ context.Context, id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Notification{}, ErrStoreClosed
	}
	n, ok := s.rows[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return clone(n), nil
}

func (s *MemoryNotificationStore) Insert(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Notification{}, ErrStoreClosed
	}
	n, err := prepareInsert(n, s.ids, s.opts.now())
	if err != nil {
		return Notification{}, err
	}
	if _, ok := s.rows[n.ID]; ok {
		return Notification{}, ErrConflict
	}
	s.rows[n.ID] = clone(n)
	return n, nil
}

func (s *MemoryNotificationStore) Update(_ context.Context, id string, p Patch) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Notification{}, ErrStoreClosed
	}
	n, ok := s.rows[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	n = p.Normalize(s.opts.now().UTC()).Apply(n)
	s.rows[id] = n
	return clone(n), nil
}

func (s *MemoryNotificationStore) UpdateMany(_ context.Context, ownerID string, m Match, p Patch) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	p = p.Normalize(s.opts.now().UTC())

	var out []Notification
	for id, n := range s.rows {
		if n.OwnerID != ownerID || !m.Matches(n) {
			continue
		}
		n = p.Apply(n)
		s.rows[id] = n
		out = append(out, clone(n))
	}
	Sort(out)
	return out, nil
}

func (s *MemoryNotificationStore) Delete(_ context.Context, id string) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Notification{}, ErrStoreClosed
	}
	n, ok := s.rows[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	delete(s.rows, id)
	return n, nil
}

func (s *MemoryNotificationStore) Ping(context.Context) error { return nil }

func (s *MemoryNotificationStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func clone(n Notification) Notification {
	if n.Metadata != nil {
		n.Metadata = maps.Clone(n.Metadata)
	}
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}
