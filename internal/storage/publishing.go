package storage

import (
	"context"
	"log/slog"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const (
	Namespace = realtime.DefaultNamespace
	Resource  = "notifications"
)

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

var _ NotificationStore = (*PublishingStore)(nil)

// PublishingStore publishes a change event after every successful write to
// the wrapped store. A failed publish is logged; the write stands.
type PublishingStore struct {
	NotificationStore
	publisher Publisher
	logger    *slog.Logger
}

func NewPublishingStore(store NotificationStore, publisher Publisher, logger *slog.Logger) *PublishingStore {
	return &PublishingStore{
		NotificationStore: store,
		publisher:         publisher,
		logger:            logger,
	}
}

func (s *PublishingStore) Insert(ctx context.Context, n Notification) (Notification, error) {
	n, err := s.NotificationStore.Insert(ctx, n)
	if err != nil {
		return Notification{}, err
	}
	s.publish(ctx, realtime.EventCreated, n.ID, n, nil)
	return n, nil
}

func (s *PublishingStore) Update(ctx context.Context, id string, p Patch) (Notification, error) {
	n, err := s.NotificationStore.Update(ctx, id, p)
	if err != nil {
		return Notification{}, err
	}
	s.publish(ctx, realtime.EventUpdated, n.ID, n, nil)
	return n, nil
}

func (s *PublishingStore) UpdateMany(ctx context.Context, ownerID string, m Match, p Patch) ([]Notification, error) {
	ns, err := s.NotificationStore.UpdateMany(ctx, ownerID, m, p)
	if err != nil {
		return nil, err
	}
	for _, n := range ns {
		s.publish(ctx, realtime.EventUpdated, n.ID, n, nil)
	}
	return ns, nil
}

func (s *PublishingStore) Delete(ctx context.Context, id string) (Notification, error) {
	n, err := s.NotificationStore.Delete(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	s.publish(ctx, realtime.EventDeleted, n.ID, nil, n)
	return n, nil
}

func (s *PublishingStore) publish(ctx context.Context, t realtime.EventType, id string, record, oldRecord any) {
	ev, err := realtime.NewEvent(t, Namespace, Resource, record, oldRecord)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event",
			xslog.EventType(string(t)),
			xslog.NotificationID(id),
			xslog.Error(err),
		)
	}
}
