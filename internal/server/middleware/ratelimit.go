package middleware

import (
	"net/http"
	"time"

	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

const rateLimitRetryAfter = time.Second

// RateLimitWithBackend applies IP-based rate limiting.
func RateLimitWithBackend(backend storage.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := xslog.FromContext(ctx)
			ip := xhttp.ClientIP(r)

			allowed, err := backend.Allow(ctx, ip)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					xslog.ErrorGroup(err),
					xslog.IP(ip),
				)
				xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("rate limit check failed")))
				return
			}

			if !allowed {
				xerrors.WriteError(ctx, w, xerrors.TooManyRequests(xerrors.WithRetryAfter(rateLimitRetryAfter), xerrors.WithReason("ip_rate_limit")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
