package storage

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type NotificationStore interface {
	// List returns up to limit of the owner's newest notifications, newest
	// first.
	List(ctx context.Context, ownerID string, limit int) ([]Notification, error)

	// Get returns ErrNotFound if the notification does not exist.
	Get(ctx context.Context, id string) (Notification, error)

	// Insert assigns an id and creation time where missing and stores n.
	Insert(ctx context.Context, n Notification) (Notification, error)

	Update(ctx context.Context, id string, p Patch) (Notification, error)

	// UpdateMany applies p to every matching notification of the owner and
	// returns the changed rows.
	UpdateMany(ctx context.Context, ownerID string, m Match, p Patch) ([]Notification, error)

	// Delete removes the notification and returns it as it was.
	Delete(ctx context.Context, id string) (Notification, error)

	Ping(ctx context.Context) error

	Close() error
}

type Clock func() time.Time

type options struct {
	now Clock
}

type Option func(*options)

func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// idGenerator issues ULIDs that sort by creation time and stay monotonic
// within one millisecond.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) New(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// prepareInsert fills the store-assigned fields and validates the row.
func prepareInsert(n Notification, ids *idGenerator, now time.Time) (Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.CreatedAt = n.CreatedAt.UTC()
	if n.IsRead && n.ReadAt == nil {
		at := now.UTC()
		n.ReadAt = &at
	}
	if !n.IsRead {
		n.ReadAt = nil
	}
	if err := n.Validate(); err != nil {
		return Notification{}, err
	}
	if n.ID == "" {
		id, err := ids.New(n.CreatedAt)
		if err != nil {
			return Notification{}, err
		}
		n.ID = id
	}
	return n, nil
}
