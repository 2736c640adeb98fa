package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	go_json "github.com/goccy/go-json"

	"github.com/garrettladley/noticeboard/internal/client/api"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/validator"
	"github.com/garrettladley/noticeboard/internal/xcontext"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const maxBodyBytes = 64 << 10

// createRequest is the body of POST /api/notifications. The owner comes from
// the request, never the body.
type createRequest struct {
	storage.Notification
}

func (r createRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if !r.Kind.Valid() {
		errs["kind"] = fmt.Sprintf("unknown kind %q", r.Kind)
	}
	if strings.TrimSpace(r.Title) == "" {
		errs["title"] = "is required"
	}
	if r.IsRead != (r.ReadAt != nil) {
		errs["read_at"] = "must be set exactly when is_read is true"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

type Notifications struct {
	store storage.NotificationStore
}

func NewNotifications(store storage.NotificationStore) *Notifications {
	return &Notifications{store: store}
}

// HandleList handles GET /api/notifications.
// Query params: limit (1-200, default 50)
func (h *Notifications) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	ownerID, ok := xcontext.GetOwnerID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
		return
	}

	limit := storage.DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > storage.MaxListLimit {
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid limit parameter (must be 1-200)")))
			return
		}
		limit = l
	}

	notifications, err := h.store.List(ctx, ownerID, limit)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to fetch notifications"), xerrors.WithCause(err)))
		return
	}
	if notifications == nil {
		notifications = []storage.Notification{}
	}

	logger.DebugContext(ctx, "fetched notifications",
		xslog.Count(len(notifications)),
		xslog.Limit(limit),
	)

	xhttp.WriteOK(w, api.ListResponse{Notifications: notifications})
}

// HandleCreate handles POST /api/notifications. The notification is created
// for the requesting owner.
func (h *Notifications) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	ownerID, ok := xcontext.GetOwnerID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
		return
	}

	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body")))
		return
	}
	if verr := validator.Validate(req); verr != nil {
		xerrors.WriteError(ctx, w, verr)
		return
	}
	n := req.Notification
	n.OwnerID = ownerID

	created, err := h.store.Insert(ctx, n)
	switch {
	case errors.Is(err, storage.ErrInvalidNotification):
		xerrors.WriteError(ctx, w, xerrors.Validation(map[string]string{"notification": err.Error()}))
		return
	case errors.Is(err, storage.ErrConflict):
		xerrors.WriteError(ctx, w, xerrors.FromStatus(http.StatusConflict, xerrors.WithMessage("notification already exists")))
		return
	case err != nil:
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to create notification"), xerrors.WithCause(err)))
		return
	}

	logger.InfoContext(ctx, "created notification",
		xslog.NotificationID(created.ID),
		xslog.Kind(string(created.Kind)),
	)

	xhttp.WriteCreated(w, "/api/notifications/"+url.PathEscape(created.ID), created)
}

// HandleUpdate handles PATCH /api/notifications/{id}.
func (h *Notifications) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	id := r.PathValue("id")
	if !h.owns(w, r, id) {
		return
	}

	var p storage.Patch
	if err := decodeBody(w, r, &p); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body")))
		return
	}
	if p.IsZero() {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("patch must set is_read or read_at")))
		return
	}

	updated, err := h.store.Update(ctx, id, p)
	if errors.Is(err, storage.ErrNotFound) {
		xerrors.WriteError(ctx, w, xerrors.NotFound(xerrors.WithMessage("notification not found")))
		return
	}
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to update notification"), xerrors.WithCause(err)))
		return
	}

	logger.DebugContext(ctx, "updated notification", xslog.NotificationID(id))

	xhttp.WriteOK(w, updated)
}

// HandleReadAll handles POST /api/notifications/read.
func (h *Notifications) HandleReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	ownerID, ok := xcontext.GetOwnerID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
		return
	}

	var req api.ReadAllRequest
	if err := decodeBody(w, r, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body")))
		return
	}
	if req.Patch.IsZero() {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("patch must set is_read or read_at")))
		return
	}

	updated, err := h.store.UpdateMany(ctx, ownerID, req.Match, req.Patch)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to update notifications"), xerrors.WithCause(err)))
		return
	}
	if updated == nil {
		updated = []storage.Notification{}
	}

	logger.DebugContext(ctx, "updated notifications", xslog.Count(len(updated)))

	xhttp.WriteOK(w, api.ReadAllResponse{Updated: len(updated), Notifications: updated})
}

// HandleDelete handles DELETE /api/notifications/{id}.
func (h *Notifications) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	id := r.PathValue("id")
	if !h.owns(w, r, id) {
		return
	}

	if _, err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			xerrors.WriteError(ctx, w, xerrors.NotFound(xerrors.WithMessage("notification not found")))
			return
		}
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to delete notification"), xerrors.WithCause(err)))
		return
	}

	logger.InfoContext(ctx, "deleted notification", xslog.NotificationID(id))

	xhttp.WriteNoContent(w)
}

// owns writes an error response and returns false unless the notification
// exists and belongs to the requesting owner. Other owners' notifications
// are reported as missing.
func (h *Notifications) owns(w http.ResponseWriter, r *http.Request, id string) bool {
	ctx := r.Context()

	ownerID, ok := xcontext.GetOwnerID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
		return false
	}

	n, err := h.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && n.OwnerID != ownerID) {
		xerrors.WriteError(ctx, w, xerrors.NotFound(xerrors.WithMessage("notification not found")))
		return false
	}
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to fetch notification"), xerrors.WithCause(err)))
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return go_json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
