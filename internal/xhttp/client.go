package xhttp

import (
	"net/http"
	"time"
)

type clientConfig struct {
	timeout time.Duration
	ownerID string
	base    http.RoundTripper
}

type ClientOption func(*clientConfig)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithOwnerID stamps X-Owner-ID on requests that do not set one.
func WithOwnerID(ownerID string) ClientOption {
	return func(c *clientConfig) { c.ownerID = ownerID }
}

// WithBaseTransport replaces http.DefaultTransport underneath the noticeboard
// headers, such as an httptest server's transport.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.base = rt }
}

// NewHTTPClient returns a client for the noticeboard API. Without WithTimeout
// it never times out, which suits the realtime stream.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &http.Client{
		Timeout:   cfg.timeout,
		Transport: &noticeboardTransport{base: cfg.base, ownerID: cfg.ownerID},
	}
}
