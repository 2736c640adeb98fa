package server

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garrettladley/noticeboard/internal/alert"
	"github.com/garrettladley/noticeboard/internal/changefeed"
	"github.com/garrettladley/noticeboard/internal/client/api"
	"github.com/garrettladley/noticeboard/internal/client/sse"
	"github.com/garrettladley/noticeboard/internal/inbox"
	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	go_json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

type testServer struct {
	url     string
	store   storage.NotificationStore
	manager *realtime.Manager
	logger  *slog.Logger
}

func newTestServer(t *testing.T, limiter storage.RateLimiter) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := changefeed.NewMemory(logger)
	store := storage.NewPublishingStore(storage.NewMemoryNotificationStore(), feed, logger)
	registry := prometheus.NewRegistry()
	manager := realtime.NewManager(changefeed.NewTransport(feed, logger),
		realtime.WithLogger(logger),
		realtime.WithMetrics(realtime.NewMetrics(registry)),
	)

	srv := httptest.NewServer(NewHandler(Deps{
		Store:    store,
		Manager:  manager,
		Limiter:  limiter,
		Registry: registry,
		Logger:   logger,
	}))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		manager.Close()
		_ = feed.Close()
	})

	return &testServer{url: srv.URL, store: store, manager: manager, logger: logger}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotificationsAPI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestServer(t, nil)
	owner := api.New(ts.url, "u1")
	other := api.New(ts.url, "u2")

	a, err := owner.Insert(ctx, storage.Notification{OwnerID: "u1", Kind: storage.KindComment, Title: "first"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if a.ID == "" || a.OwnerID != "u1" {
		t.Fatalf("Insert() = %+v", a)
	}
	b, err := owner.Insert(ctx, storage.Notification{OwnerID: "u1", Kind: storage.KindLike, Title: "second"})
	if err != nil {
		t.Fatal(err)
	}

	list, err := owner.List(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Fatalf("List() = %+v, want newest first", list)
	}

	if got, err := other.List(ctx, "u2", 10); err != nil || len(got) != 0 {
		t.Fatalf("other List() = %v, %v", got, err)
	}

	if _, err := other.Update(ctx, a.ID, storage.MarkRead(time.Now())); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other Update() error = %v, want ErrNotFound", err)
	}

	updated, err := owner.Update(ctx, a.ID, storage.MarkRead(time.Now()))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.IsRead || updated.ReadAt == nil {
		t.Errorf("Update() = %+v, want read", updated)
	}

	read, err := owner.UpdateMany(ctx, "u1", storage.Match{UnreadOnly: true}, storage.MarkRead(time.Now()))
	if err != nil {
		t.Fatalf("UpdateMany() error = %v", err)
	}
	if len(read) != 1 || read[0].ID != b.ID {
		t.Errorf("UpdateMany() = %+v, want only %s", read, b.ID)
	}

	if _, err := other.Delete(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := owner.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := owner.Delete(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestNotificationsAPIValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		owner      string
		body       string
		wantStatus int
	}{
		{name: "missing owner", method: http.MethodGet, path: "/api/notifications", wantStatus: http.StatusUnauthorized},
		{name: "limit too large", method: http.MethodGet, path: "/api/notifications?limit=201", owner: "u1", wantStatus: http.StatusBadRequest},
		{name: "limit zero", method: http.MethodGet, path: "/api/notifications?limit=0", owner: "u1", wantStatus: http.StatusBadRequest},
		{name: "limit max", method: http.MethodGet, path: "/api/notifications?limit=200", owner: "u1", wantStatus: http.StatusOK},
		{name: "bad json", method: http.MethodPost, path: "/api/notifications", owner: "u1", body: "{", wantStatus: http.StatusBadRequest},
		{name: "invalid kind", method: http.MethodPost, path: "/api/notifications", owner: "u1", body: `{"kind":"poke","title":"x"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "empty patch", method: http.MethodPost, path: "/api/notifications/read", owner: "u1", body: `{"patch":{}}`, wantStatus: http.StatusBadRequest},
		{name: "unknown id", method: http.MethodPatch, path: "/api/notifications/missing", owner: "u1", body: `{"is_read":true}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequest(tt.method, ts.url+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if tt.owner != "" {
				xhttp.SetRequestHeaderOwnerID(req, tt.owner)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestCreateReportsInvalidFields(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := api.New(ts.url, "u1")

	_, err := c.Insert(context.Background(), storage.Notification{OwnerID: "u1", Kind: "poke", IsRead: true})
	appErr := xerrors.As(err)
	if appErr == nil || appErr.Validation == nil {
		t.Fatalf("Insert() error = %v, want validation error", err)
	}
	for _, field := range []string{"kind", "title", "read_at"} {
		if _, ok := appErr.Validation.Fields[field]; !ok {
			t.Errorf("fields = %v, missing %q", appErr.Validation.Fields, field)
		}
	}
}

func TestCreateSetsLocation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, ts.url+"/api/notifications", strings.NewReader(`{"kind":"mention","title":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	xhttp.SetRequestHeaderOwnerID(req, "u1")
	req.Header.Set(xhttp.ContentType, xhttp.ApplicationJSON)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var created storage.Notification
	if err := go_json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if got, want := resp.Header.Get(xhttp.Location), "/api/notifications/"+created.ID; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestListIsCompressed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestServer(t, nil)
	for i := range 20 {
		if _, err := ts.store.Insert(ctx, storage.Notification{
			OwnerID: "u1",
			Kind:    storage.KindComment,
			Title:   strings.Repeat("comment on your post ", 5) + strconv.Itoa(i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(http.MethodGet, ts.url+"/api/notifications", nil)
	if err != nil {
		t.Fatal(err)
	}
	xhttp.SetRequestHeaderOwnerID(req, "u1")
	req.Header.Set(xhttp.AcceptEncoding, "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := resp.Header.Get(xhttp.ContentEncoding); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var list api.ListResponse
	if err := go_json.NewDecoder(zr).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Notifications) != 20 {
		t.Errorf("notifications = %d, want 20", len(list.Notifications))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.url + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.url + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "noticeboard_realtime_channels") {
		t.Errorf("metrics missing realtime gauge:\n%s", body)
	}
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	t.Parallel()

	limiter := storage.NewMemoryRateLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	ts := newTestServer(t, limiter)
	client := api.New(ts.url, "u1")

	if _, err := client.List(context.Background(), "u1", 0); err != nil {
		t.Fatalf("first List() error = %v", err)
	}
	_, err := client.List(context.Background(), "u1", 0)
	if status := xerrors.StatusCode(err); status != http.StatusTooManyRequests {
		t.Errorf("second List() status = %d (%v), want 429", status, err)
	}

	resp, err := http.Get(ts.url + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health is rate limited: %d", resp.StatusCode)
	}
}

func TestRealtimeStream(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestServer(t, nil)
	tr := sse.NewTransport(ts.url, "u1", ts.logger)

	stream, err := tr.Subscribe(ctx, inbox.Descriptor("u1"))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer func() { _ = stream.Close() }()

	if got := ts.manager.Len(); got != 1 {
		t.Errorf("manager channels = %d, want 1", got)
	}

	if _, err := ts.store.Insert(ctx, storage.Notification{OwnerID: "u2", Kind: storage.KindLike, Title: "not mine"}); err != nil {
		t.Fatal(err)
	}
	n, err := ts.store.Insert(ctx, storage.Notification{OwnerID: "u1", Kind: storage.KindMention, Title: "mine"})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case ev, ok := <-stream.Events():
		if !ok {
			t.Fatalf("stream ended: %v", stream.Err())
		}
		var got storage.Notification
		if err := ev.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if ev.Type != realtime.EventCreated || got.ID != n.ID {
			t.Errorf("event = %s %s, want created %s", ev.Type, got.ID, n.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestRealtimeStreamRejectsForeignFilter(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	tr := sse.NewTransport(ts.url, "u1", ts.logger)

	tests := []struct {
		name string
		d    realtime.Descriptor
	}{
		{name: "other owner", d: inbox.Descriptor("u2")},
		{name: "no filter", d: realtime.Descriptor{Resource: storage.Resource}},
		{name: "unknown table", d: realtime.Descriptor{Resource: "users", Filter: "owner_id=eq.u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tr.Subscribe(context.Background(), tt.d); err == nil {
				t.Error("Subscribe() succeeded, want error")
			}
		})
	}
}

func TestInboxOverHTTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestServer(t, nil)
	client := api.New(ts.url, "u1")

	if _, err := client.Insert(ctx, storage.Notification{OwnerID: "u1", Kind: storage.KindSystem, Title: "welcome"}); err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		titles []string
	)
	sink := alert.Func(func(_ context.Context, title, _ string) error {
		mu.Lock()
		titles = append(titles, title)
		mu.Unlock()
		return nil
	})

	manager := realtime.NewManager(sse.NewTransport(ts.url, "u1", ts.logger), realtime.WithLogger(ts.logger))
	defer manager.Close()

	store := inbox.New("u1", client, client, inbox.WithAlertSink(sink), inbox.WithLogger(ts.logger))
	sess, err := inbox.Open(ctx, manager, store, 50)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	waitUntil(t, "connected", func() bool { return sess.Handle().Status() == realtime.StatusConnected })
	if got := store.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	n, err := api.New(ts.url, "u1").Insert(ctx, storage.Notification{OwnerID: "u1", Kind: storage.KindComment, Title: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	waitUntil(t, "live insert", func() bool { _, ok := store.Get(n.ID); return ok })
	waitUntil(t, "alert", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(titles) == 1 && titles[0] == "hello"
	})

	if err := store.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if got := store.UnreadCount(); got != 1 {
		t.Errorf("UnreadCount() = %d, want 1", got)
	}

	if err := store.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Get(n.ID); ok {
		t.Error("deleted notification still present")
	}
}
