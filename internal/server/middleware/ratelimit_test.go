package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/garrettladley/noticeboard/internal/xhttp"
)

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func TestRateLimitWithBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
		wantReason string
	}{
		{
			name:       "allowed",
			limiter:    &stubLimiter{allowed: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "limited",
			limiter:    &stubLimiter{allowed: false},
			wantStatus: http.StatusTooManyRequests,
			wantReason: "ip_rate_limit",
		},
		{
			name:       "backend failure",
			limiter:    &stubLimiter{err: errors.New("redis down")},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := RateLimitWithBackend(tt.limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get(xhttp.XRateLimitReason); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
			if len(tt.limiter.keys) != 1 || tt.limiter.keys[0] != "192.0.2.1" {
				t.Errorf("keys = %v, want [192.0.2.1]", tt.limiter.keys)
			}
		})
	}
}
