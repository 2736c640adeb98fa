package inbox

import (
	"context"
	"sync"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

// Descriptor is the live feed of one owner's notifications.
func Descriptor(owner string) realtime.Descriptor {
	return realtime.Descriptor{
		Namespace: storage.Namespace,
		Resource:  storage.Resource,
		Filter:    "owner_id=eq." + owner,
	}
}

// Handlers decode change events and apply them to the store. Undecodable
// events are logged and dropped.
func (s *Store) Handlers() realtime.Handlers {
	decode := func(ev realtime.Event) (storage.Notification, bool) {
		var n storage.Notification
		if err := ev.Decode(&n); err != nil {
			s.logger.WarnContext(s.ctx, "dropping undecodable event",
				xslog.EventType(string(ev.Type)),
				xslog.Error(err),
			)
			return storage.Notification{}, false
		}
		return n, true
	}

	return realtime.Handlers{
		OnCreated: func(ev realtime.Event) {
			if n, ok := decode(ev); ok {
				s.ApplyCreated(n)
			}
		},
		OnUpdated: func(ev realtime.Event) {
			if n, ok := decode(ev); ok {
				s.ApplyUpdated(n)
			}
		},
		OnDeleted: func(ev realtime.Event) {
			if n, ok := decode(ev); ok {
				s.ApplyDeleted(n.ID)
			}
		},
		OnStatus: func(status realtime.Status, err error) {
			attrs := []any{xslog.Status(string(status))}
			if err != nil {
				attrs = append(attrs, xslog.Error(err))
			}
			s.logger.DebugContext(s.ctx, "inbox channel status", attrs...)
		},
	}
}

// Session ties a store to its live subscription. Closing it unsubscribes the
// channel and closes the store.
type Session struct {
	store  *Store
	handle *realtime.Handle
	once   sync.Once
}

// Open subscribes the store to its owner's feed and loads the first page.
// Events arriving during the load are kept and replayed after it.
func Open(ctx context.Context, manager *realtime.Manager, store *Store, limit int) (*Session, error) {
	sess := &Session{
		store:  store,
		handle: manager.Subscribe(Descriptor(store.Owner()), store.Handlers(), true),
	}
	if _, err := store.Load(ctx, limit); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) Handle() *realtime.Handle { return s.handle }

func (s *Session) Close() {
	s.once.Do(func() {
		s.handle.Unsubscribe()
		s.store.Close()
	})
}
