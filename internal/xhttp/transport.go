package xhttp

import (
	"fmt"
	"net/http"

	"github.com/garrettladley/noticeboard/internal/version"
)

type noticeboardTransport struct {
	base    http.RoundTripper
	ownerID string
}

var _ http.RoundTripper = (*noticeboardTransport)(nil)

func (t *noticeboardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(UserAgent, "noticeboard/"+version.Get())
	req.Header.Set(version.Header, version.Get())
	if t.ownerID != "" && GetRequestHeaderOwnerID(req) == "" {
		SetRequestHeaderOwnerID(req, t.ownerID)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform round trip: %w", err)
	}
	return resp, nil
}
