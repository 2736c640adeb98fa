package server

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/server/handler"
	servermw "github.com/garrettladley/noticeboard/internal/server/middleware"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/telemetry"
	"github.com/garrettladley/noticeboard/internal/version"
	"github.com/garrettladley/noticeboard/internal/xhttp/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Store    storage.NotificationStore
	Manager  *realtime.Manager
	Limiter  storage.RateLimiter
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewHandler wires the notification API, the realtime stream, health and
// metrics behind the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	notificationsHandler := handler.NewNotifications(d.Store)
	realtimeHandler := handler.NewRealtime(d.Manager)
	healthHandler := handler.NewHealth(d.Store)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	if d.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/notifications", notificationsHandler.HandleList)
	apiMux.HandleFunc("POST /api/notifications", notificationsHandler.HandleCreate)
	apiMux.HandleFunc("POST /api/notifications/read", notificationsHandler.HandleReadAll)
	apiMux.HandleFunc("PATCH /api/notifications/{id}", notificationsHandler.HandleUpdate)
	apiMux.HandleFunc("DELETE /api/notifications/{id}", notificationsHandler.HandleDelete)
	apiMux.HandleFunc("GET /api/realtime", realtimeHandler.HandleStream)

	apiMiddleware := []func(http.Handler) http.Handler{
		servermw.ClientVersion(version.Get()),
		middleware.OwnerID,
	}
	if d.Limiter != nil {
		apiMiddleware = append([]func(http.Handler) http.Handler{servermw.RateLimitWithBackend(d.Limiter)}, apiMiddleware...)
	}
	mux.Handle("/api/", middleware.Chain(apiMux, apiMiddleware...))

	wrapped := middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.Logging,
		middleware.ShutdownContext,
		middleware.SecurityHeaders,
		middleware.Gzip,
	)

	return telemetry.Handler(wrapped, "noticeboard")
}
