package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	go_json "github.com/goccy/go-json"

	"github.com/garrettladley/noticeboard/internal/client/sse"
	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xcontext"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	sseWriteTimeout      = 45 * time.Second
	sseConnectTimeout    = 10 * time.Second
	sseEventBuffer       = 64
)

// Realtime streams change events for one descriptor per connection. All
// connections share the manager, so clients watching the same descriptor
// share one feed subscription.
type Realtime struct {
	manager *realtime.Manager
}

func NewRealtime(manager *realtime.Manager) *Realtime {
	return &Realtime{manager: manager}
}

type statusChange struct {
	status realtime.Status
	err    error
}

// HandleStream handles GET /api/realtime.
// Query params: schema, table, filter, events
func (h *Realtime) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	ownerID, ok := xcontext.GetOwnerID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
		return
	}

	d, err := parseDescriptor(r)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage(err.Error())))
		return
	}
	if err := authorize(d, ownerID); err != nil {
		xerrors.WriteError(ctx, w, xerrors.Forbidden(xerrors.WithMessage(err.Error())))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("streaming unsupported")))
		return
	}

	key := d.Key().String()
	ctx = xslog.WithChannel(ctx, key)
	logger = xslog.FromContext(ctx)

	events := make(chan realtime.Event, sseEventBuffer)
	statuses := make(chan statusChange, 8)

	handle := h.manager.Subscribe(d, realtime.Handlers{
		OnEvent: func(ev realtime.Event) {
			select {
			case events <- ev:
			default:
				logger.WarnContext(ctx, "SSE client too slow, dropping event", xslog.EventType(string(ev.Type)))
			}
		},
		OnStatus: func(s realtime.Status, err error) {
			select {
			case statuses <- statusChange{status: s, err: err}:
			default:
			}
		},
	}, true)
	defer handle.Unsubscribe()

	if err := handle.Err(); err != nil {
		xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("failed to subscribe"), xerrors.WithCause(err)))
		return
	}

	if err := waitConnected(r, handle, statuses); err != nil {
		xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("failed to subscribe"), xerrors.WithCause(err)))
		return
	}

	w.Header().Set(xhttp.ContentType, xhttp.TextEventStream)
	w.Header().Set(xhttp.CacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	if err := writeSSEEvent(rc, w, flusher, sse.EventConnected, map[string]any{
		"owner_id": ownerID,
		"channel":  key,
		"time":     time.Now().Format(time.RFC3339),
	}); err != nil {
		logger.ErrorContext(ctx, "failed to send connected event", xslog.Error(err))
		return
	}

	logger.InfoContext(ctx, "SSE connection established")

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			if xcontext.IsShutdownInProgress(ctx) {
				logger.InfoContext(ctx, "SSE graceful shutdown initiated")

				// best effort: send shutdown event to client
				_ = writeSSEEvent(rc, w, flusher, sse.EventShutdown, map[string]string{
					"reason": "server-restart",
					"time":   time.Now().Format(time.RFC3339),
				})
				return
			}
			logger.InfoContext(ctx, "SSE connection closed by client")
			return

		case ev := <-events:
			if err := writeSSEEvent(rc, w, flusher, sse.EventChange, ev); err != nil {
				logger.ErrorContext(ctx, "failed to send change event", xslog.Error(err))
				return
			}

		case sc := <-statuses:
			if sc.status == realtime.StatusError || sc.status == realtime.StatusDisconnected {
				attrs := []any{xslog.Status(sc.status.String())}
				if sc.err != nil {
					attrs = append(attrs, xslog.Error(sc.err))
				}
				logger.WarnContext(ctx, "feed subscription lost, closing SSE stream", attrs...)
				return
			}

		case t := <-heartbeat.C:
			if err := writeSSEEvent(rc, w, flusher, sse.EventHeartbeat, map[string]string{
				"time": t.Format(time.RFC3339),
			}); err != nil {
				logger.ErrorContext(ctx, "failed to send heartbeat", xslog.Error(err))
				return
			}
		}
	}
}

// waitConnected blocks until the handle's channel is connected.
func waitConnected(r *http.Request, handle *realtime.Handle, statuses <-chan statusChange) error {
	if handle.Status() == realtime.StatusConnected {
		return nil
	}

	timer := time.NewTimer(sseConnectTimeout)
	defer timer.Stop()

	for {
		select {
		case sc := <-statuses:
			switch sc.status {
			case realtime.StatusConnected:
				return nil
			case realtime.StatusError:
				if sc.err != nil {
					return sc.err
				}
				return errors.New("feed subscription failed")
			}
		case <-timer.C:
			if handle.Status() == realtime.StatusConnected {
				return nil
			}
			return errors.New("timed out waiting for feed subscription")
		case <-r.Context().Done():
			return r.Context().Err()
		}
	}
}

func parseDescriptor(r *http.Request) (realtime.Descriptor, error) {
	q := r.URL.Query()

	mask, err := realtime.ParseEventMask(q.Get("events"))
	if err != nil {
		return realtime.Descriptor{}, err
	}

	d := realtime.Descriptor{
		Namespace: q.Get("schema"),
		Resource:  q.Get("table"),
		Filter:    q.Get("filter"),
		Events:    mask,
	}
	if err := d.Validate(); err != nil {
		return realtime.Descriptor{}, err
	}
	return d, nil
}

// authorize only allows notification streams filtered to the caller's own
// rows.
func authorize(d realtime.Descriptor, ownerID string) error {
	key := d.Key()
	if key.Namespace != storage.Namespace || key.Resource != storage.Resource {
		return fmt.Errorf("unknown resource %s.%s", key.Namespace, key.Resource)
	}
	f, err := realtime.ParseFilter(key.Filter)
	if err != nil {
		return err
	}
	if f.Column != "owner_id" || f.Op != realtime.OpEq || len(f.Values) != 1 || f.Values[0] != ownerID {
		return errors.New("filter must be owner_id=eq.<owner id>")
	}
	return nil
}

func writeSSEEvent(rc *http.ResponseController, w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	// extend write deadline before each write (ignore if not supported)
	if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	jsonData, err := go_json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if err := sse.WriteEvent(w, event, jsonData); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}
