package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

const defaultTimeout = 30 * time.Second

const notificationsPath = "/api/notifications"

type ListResponse struct {
	Notifications []storage.Notification `json:"notifications"`
}

type ReadAllRequest struct {
	Match storage.Match `json:"match"`
	Patch storage.Patch `json:"patch"`
}

type ReadAllResponse struct {
	Updated       int                    `json:"updated"`
	Notifications []storage.Notification `json:"notifications"`
}

// Client talks to the notification server's REST API. Every request carries
// the owner id the client was built with unless the call names another owner.
type Client struct {
	baseURL    string
	ownerID    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func New(baseURL string, ownerID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ownerID:    ownerID,
		httpClient: xhttp.NewHTTPClient(xhttp.WithTimeout(defaultTimeout)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context, ownerID string, limit int) ([]storage.Notification, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result ListResponse
	if err := c.do(ctx, http.MethodGet, notificationsPath, ownerID, q, nil, &result); err != nil {
		return nil, err
	}
	return result.Notifications, nil
}

func (c *Client) Insert(ctx context.Context, n storage.Notification) (storage.Notification, error) {
	var result storage.Notification
	if err := c.do(ctx, http.MethodPost, notificationsPath, n.OwnerID, nil, n, &result); err != nil {
		return storage.Notification{}, err
	}
	return result, nil
}

func (c *Client) Update(ctx context.Context, id string, p storage.Patch) (storage.Notification, error) {
	var result storage.Notification
	if err := c.do(ctx, http.MethodPatch, notificationPath(id), c.ownerID, nil, p, &result); err != nil {
		return storage.Notification{}, err
	}
	return result, nil
}

func (c *Client) UpdateMany(ctx context.Context, ownerID string, m storage.Match, p storage.Patch) ([]storage.Notification, error) {
	var result ReadAllResponse
	body := ReadAllRequest{Match: m, Patch: p}
	if err := c.do(ctx, http.MethodPost, notificationsPath+"/read", ownerID, nil, body, &result); err != nil {
		return nil, err
	}
	return result.Notifications, nil
}

// Delete returns only the id; the server answers 204 without a body.
func (c *Client) Delete(ctx context.Context, id string) (storage.Notification, error) {
	if err := c.do(ctx, http.MethodDelete, notificationPath(id), c.ownerID, nil, nil, nil); err != nil {
		return storage.Notification{}, err
	}
	return storage.Notification{ID: id}, nil
}

func notificationPath(id string) string {
	return notificationsPath + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, ownerID string, q url.Values, in, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := go_json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(xhttp.Accept, xhttp.ApplicationJSON)
	if in != nil {
		req.Header.Set(xhttp.ContentType, xhttp.ApplicationJSON)
	}
	if ownerID == "" {
		ownerID = c.ownerID
	}
	if ownerID != "" {
		xhttp.SetRequestHeaderOwnerID(req, ownerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := go_json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body xerrors.Response
	_ = go_json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode == http.StatusNotFound {
		if body.Message != "" {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, body.Message)
		}
		return storage.ErrNotFound
	}

	var opts []xerrors.Option
	if body.Message != "" {
		opts = append(opts, xerrors.WithMessage(body.Message))
	}
	if secs, err := strconv.Atoi(resp.Header.Get(xhttp.RetryAfter)); err == nil {
		opts = append(opts, xerrors.WithRetryAfter(time.Duration(secs)*time.Second))
	}
	if reason := resp.Header.Get(xhttp.XRateLimitReason); reason != "" {
		opts = append(opts, xerrors.WithReason(reason))
	}

	e := xerrors.FromStatus(resp.StatusCode, opts...)
	if len(body.Fields) > 0 {
		e.Validation = &xerrors.ValidationInfo{Fields: body.Fields}
	}
	return e
}
