package xhttp

import (
	"fmt"
	"net/http"
	"time"
)

const (
	XForwardedFor    = "X-Forwarded-For"
	XContentTypeOpts = "X-Content-Type-Options"
	XFrameOpts       = "X-Frame-Options"
	XXSSProtection   = "X-Xss-Protection"
	ReferrerPolicy   = "Referrer-Policy"
	XRateLimitReason = "X-RateLimit-Reason"
	XOwnerID         = "X-Owner-ID"
	XRequestID       = "X-Request-ID"
	RetryAfter       = "Retry-After"
)

const (
	ContentType     = "Content-Type"
	ContentLength   = "Content-Length"
	ContentEncoding = "Content-Encoding"
	AcceptEncoding  = "Accept-Encoding"
	Accept          = "Accept"
	CacheControl    = "Cache-Control"
	Vary            = "Vary"
	Location        = "Location"
	UserAgent       = "User-Agent"
)

const (
	ApplicationJSON = "application/json"
	TextEventStream = "text/event-stream"
)

func SetHeaderRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set(XRequestID, requestID)
}

func SetHeaderContentTypeApplicationJSON(w http.ResponseWriter) {
	w.Header().Set(ContentType, ApplicationJSON)
}

func SetHeaderRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSeconds := int(retryAfter.Seconds())
	w.Header().Set(RetryAfter, fmt.Sprintf("%d", retryAfterSeconds))
}

func SetRequestHeaderOwnerID(r *http.Request, ownerID string) {
	r.Header.Set(XOwnerID, ownerID)
}

func GetRequestHeaderOwnerID(r *http.Request) string {
	return r.Header.Get(XOwnerID)
}
