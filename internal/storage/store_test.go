package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/noticeboard/internal/migrations"
)

var storeEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return storeEpoch }

type storeFactory func(t *testing.T) NotificationStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) NotificationStore {
			return NewMemoryNotificationStore(WithClock(fixedClock))
		},
		"sqlite": func(t *testing.T) NotificationStore {
			db, err := OpenSQLite(filepath.Join(t.TempDir(), "noticeboard.db"))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := migrations.Apply(context.Background(), db.DB); err != nil {
				t.Fatal(err)
			}
			return NewSQLiteNotificationStore(db, WithClock(fixedClock))
		},
	}
}

func seed(t *testing.T, s NotificationStore, owner string, offsets ...time.Duration) []Notification {
	t.Helper()
	out := make([]Notification, 0, len(offsets))
	for i, off := range offsets {
		n, err := s.Insert(context.Background(), Notification{
			OwnerID:   owner,
			Kind:      KindComment,
			Title:     "comment " + string(rune('a'+i)),
			Body:      ptr("body"),
			Metadata:  map[string]any{"board": "general"},
			CreatedAt: storeEpoch.Add(off),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		out = append(out, n)
	}
	return out
}

func ids(ns []Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.ID)
	}
	return out
}

func TestNotificationStores(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("insert assigns id and time", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				n, err := s.Insert(context.Background(), Notification{OwnerID: "u1", Kind: KindMention, Title: "hi"})
				if err != nil {
					t.Fatal(err)
				}
				if n.ID == "" {
					t.Error("ID not assigned")
				}
				if !n.CreatedAt.Equal(storeEpoch) {
					t.Errorf("CreatedAt = %v, want %v", n.CreatedAt, storeEpoch)
				}

				got, err := s.Get(context.Background(), n.ID)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(n, got); diff != "" {
					t.Errorf("Get() mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("insert rejects invalid and duplicate", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				_, err := s.Insert(context.Background(), Notification{OwnerID: "u1", Kind: "nope", Title: "x"})
				if !errors.Is(err, ErrInvalidNotification) {
					t.Errorf("Insert(invalid) = %v, want ErrInvalidNotification", err)
				}

				n := seed(t, s, "u1", 0)[0]
				_, err = s.Insert(context.Background(), Notification{ID: n.ID, OwnerID: "u1", Kind: KindLike, Title: "dup"})
				if !errors.Is(err, ErrConflict) {
					t.Errorf("Insert(duplicate) = %v, want ErrConflict", err)
				}
			})

			t.Run("list is owner scoped newest first", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				mine := seed(t, s, "u1", time.Minute, 3*time.Minute, 2*time.Minute)
				seed(t, s, "u2", 10*time.Minute)

				got, err := s.List(context.Background(), "u1", 10)
				if err != nil {
					t.Fatal(err)
				}
				want := []string{mine[1].ID, mine[2].ID, mine[0].ID}
				if diff := cmp.Diff(want, ids(got)); diff != "" {
					t.Errorf("List() mismatch (-want +got):\n%s", diff)
				}

				got, err = s.List(context.Background(), "u1", 2)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(want[:2], ids(got)); diff != "" {
					t.Errorf("List(limit 2) mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("update read state", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				n := seed(t, s, "u1", 0)[0]
				got, err := s.Update(context.Background(), n.ID, Patch{IsRead: ptr(true)})
				if err != nil {
					t.Fatal(err)
				}
				if !got.IsRead || got.ReadAt == nil || !got.ReadAt.Equal(storeEpoch) {
					t.Errorf("Update(read) = %+v", got)
				}

				got, err = s.Update(context.Background(), n.ID, Patch{IsRead: ptr(false)})
				if err != nil {
					t.Fatal(err)
				}
				if got.IsRead || got.ReadAt != nil {
					t.Errorf("Update(unread) = %+v", got)
				}

				if _, err := s.Update(context.Background(), "missing", Patch{IsRead: ptr(true)}); !errors.Is(err, ErrNotFound) {
					t.Errorf("Update(missing) = %v, want ErrNotFound", err)
				}
			})

			t.Run("update many unread only", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				ns := seed(t, s, "u1", 0, time.Minute, 2*time.Minute)
				other := seed(t, s, "u2", 0)[0]
				if _, err := s.Update(context.Background(), ns[0].ID, Patch{IsRead: ptr(true)}); err != nil {
					t.Fatal(err)
				}

				got, err := s.UpdateMany(context.Background(), "u1", Match{UnreadOnly: true}, Patch{IsRead: ptr(true)})
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff([]string{ns[2].ID, ns[1].ID}, ids(got)); diff != "" {
					t.Errorf("UpdateMany() mismatch (-want +got):\n%s", diff)
				}

				list, err := s.List(context.Background(), "u1", 10)
				if err != nil {
					t.Fatal(err)
				}
				for _, n := range list {
					if !n.IsRead || n.ReadAt == nil {
						t.Errorf("notification %s not read", n.ID)
					}
				}

				o, err := s.Get(context.Background(), other.ID)
				if err != nil {
					t.Fatal(err)
				}
				if o.IsRead {
					t.Error("other owner's notification was updated")
				}
			})

			t.Run("delete", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				defer s.Close()

				n := seed(t, s, "u1", 0)[0]
				got, err := s.Delete(context.Background(), n.ID)
				if err != nil {
					t.Fatal(err)
				}
				if got.ID != n.ID {
					t.Errorf("Delete() returned %s, want %s", got.ID, n.ID)
				}
				if _, err := s.Delete(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
					t.Errorf("second Delete() = %v, want ErrNotFound", err)
				}
				if _, err := s.Get(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() after delete = %v, want ErrNotFound", err)
				}
			})
		})
	}
}
