package middleware

import (
	"net/http"

	"github.com/garrettladley/noticeboard/internal/xcontext"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

// OwnerID scopes the request to the owner named by the X-Owner-ID header.
// Requests without one are rejected.
func OwnerID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := xhttp.GetRequestHeaderOwnerID(r)
		if ownerID == "" {
			xerrors.WriteError(r.Context(), w, xerrors.Unauthorized(xerrors.WithMessage("missing owner id")))
			return
		}
		ctx := xcontext.SetOwnerID(r.Context(), ownerID)
		ctx = xslog.WithOwner(ctx, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
