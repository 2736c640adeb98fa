package changefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/noticeboard/internal/realtime"
)

func TestTransportFiltersEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	feed := NewMemory(discardLogger())
	transport := NewTransport(feed, discardLogger())

	stream, err := transport.Subscribe(ctx, realtime.Descriptor{
		Resource: "notifications",
		Filter:   "owner_id=eq.u1",
		Events:   realtime.MaskCreated | realtime.MaskDeleted,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	publish := []realtime.Event{
		mustEvent(t, realtime.EventCreated, map[string]any{"id": "a", "owner_id": "u2"}),
		mustEvent(t, realtime.EventUpdated, map[string]any{"id": "b", "owner_id": "u1"}),
		mustEvent(t, realtime.EventCreated, map[string]any{"id": "c", "owner_id": "u1"}),
		mustEvent(t, realtime.EventDeleted, map[string]any{"id": "d", "owner_id": "u1"}),
	}
	for _, ev := range publish {
		if err := feed.Publish(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for range 2 {
		ev := receive(t, stream.Events())
		var row struct {
			ID string `json:"id"`
		}
		if err := ev.Decode(&row); err != nil {
			t.Fatal(err)
		}
		got = append(got, string(ev.Type)+":"+row.ID)
	}

	if diff := cmp.Diff([]string{"created:c", "deleted:d"}, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestTransportInvalidFilter(t *testing.T) {
	t.Parallel()

	transport := NewTransport(NewMemory(discardLogger()), discardLogger())
	_, err := transport.Subscribe(context.Background(), realtime.Descriptor{Resource: "notifications", Filter: "owner_id"})
	if !errors.Is(err, realtime.ErrInvalidFilter) {
		t.Errorf("Subscribe() = %v, want ErrInvalidFilter", err)
	}
}

func TestTransportCloseUnsubscribes(t *testing.T) {
	t.Parallel()

	feed := NewMemory(discardLogger())
	transport := NewTransport(feed, discardLogger())
	topic := realtime.Key{Resource: "notifications"}.Topic()

	stream, err := transport.Subscribe(context.Background(), realtime.Descriptor{Resource: "notifications"})
	if err != nil {
		t.Fatal(err)
	}
	if got := feed.Subscribers(topic); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}

	_ = stream.Close()
	_ = stream.Close()

	if got := feed.Subscribers(topic); got != 0 {
		t.Errorf("Subscribers() after close = %d, want 0", got)
	}
	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Error("event after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
	if err := stream.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestTransportFeedClosedEndsCleanly(t *testing.T) {
	t.Parallel()

	feed := NewMemory(discardLogger())
	transport := NewTransport(feed, discardLogger())

	stream, err := transport.Subscribe(context.Background(), realtime.Descriptor{Resource: "notifications"})
	if err != nil {
		t.Fatal(err)
	}
	_ = feed.Close()

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Error("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
	if err := stream.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestManagerOverMemoryFeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	feed := NewMemory(discardLogger())
	topic := realtime.Key{Resource: "notifications"}.Topic()
	m := realtime.NewManager(NewTransport(feed, discardLogger()), realtime.WithLogger(discardLogger()))
	defer m.Close()

	var (
		mu  sync.Mutex
		ids []string
	)
	record := func(ev realtime.Event) {
		var row struct {
			ID string `json:"id"`
		}
		_ = ev.Decode(&row)
		mu.Lock()
		ids = append(ids, row.ID)
		mu.Unlock()
	}

	d := realtime.Descriptor{Resource: "notifications", Filter: "owner_id=eq.u1"}
	h1 := m.Subscribe(d, realtime.Handlers{OnCreated: record}, true)
	h2 := m.Subscribe(d, realtime.Handlers{OnCreated: record}, true)
	defer h1.Unsubscribe()
	defer h2.Unsubscribe()

	deadline := time.Now().Add(2 * time.Second)
	for h1.Status() != realtime.StatusConnected || feed.Subscribers(topic) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, subscribers = %d", h1.Status(), feed.Subscribers(topic))
		}
		time.Sleep(time.Millisecond)
	}

	if err := feed.Publish(ctx, mustEvent(t, realtime.EventCreated, map[string]any{"id": "n1", "owner_id": "u1"})); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(ids)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d callbacks, want 2", n)
		}
		time.Sleep(time.Millisecond)
	}
}
