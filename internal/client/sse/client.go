package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xhttp"
	"github.com/garrettladley/noticeboard/internal/xslog"
	go_json "github.com/goccy/go-json"
)

const (
	EventConnected = "connected"
	EventChange    = "change"
	EventHeartbeat = "heartbeat"
	EventShutdown  = "shutdown"
)

const (
	streamPath    = "/api/realtime"
	maxFrameBytes = 1 << 20
)

type Event struct {
	Type string
	Data []byte
}

// Transport subscribes to the server's realtime endpoint. Each Subscribe is a
// single connection; reconnecting is left to the caller.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ realtime.Transport = (*Transport)(nil)

func NewTransport(baseURL string, ownerID string, logger *slog.Logger) *Transport {
	return &Transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: xhttp.NewHTTPClient(xhttp.WithOwnerID(ownerID)), // no timeout for SSE
		logger:     logger,
	}
}

func (t *Transport) Subscribe(ctx context.Context, d realtime.Descriptor) (realtime.Stream, error) {
	u, err := url.Parse(t.baseURL + streamPath)
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}

	key := d.Key()
	q := u.Query()
	q.Set("schema", key.Namespace)
	q.Set("table", key.Resource)
	if key.Filter != "" {
		q.Set("filter", key.Filter)
	}
	q.Set("events", d.Events.String())
	u.RawQuery = q.Encode()

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(xhttp.Accept, xhttp.TextEventStream)
	req.Header.Set(xhttp.CacheControl, "no-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connecting: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	logger := t.logger.With(xslog.ChannelKey(key.String()))
	logger.InfoContext(ctx, "SSE connection established")

	s := &stream{
		events: make(chan realtime.Event),
		body:   resp.Body,
		ctx:    streamCtx,
		cancel: cancel,
		logger: logger,
	}
	go s.run()

	return s, nil
}

type stream struct {
	events chan realtime.Event
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

var _ realtime.Stream = (*stream)(nil)

func (s *stream) Events() <-chan realtime.Event { return s.events }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func (s *stream) run() {
	defer close(s.events)
	defer func() { _ = s.body.Close() }()

	err := ReadEvents(s.body, func(event Event) bool {
		return s.handleEvent(event)
	})

	if s.ctx.Err() != nil {
		s.setErr(s.ctx.Err())
		return
	}
	if err != nil {
		s.setErr(fmt.Errorf("reading stream: %w", err))
	}
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// handleEvent reports whether reading should continue.
func (s *stream) handleEvent(event Event) bool {
	switch event.Type {
	case EventChange:
		var ev realtime.Event
		if err := go_json.Unmarshal(event.Data, &ev); err != nil {
			s.logger.WarnContext(s.ctx, "failed to parse change event",
				xslog.Error(err),
				xslog.Data(string(event.Data)),
			)
			return true
		}
		select {
		case s.events <- ev:
			return true
		case <-s.ctx.Done():
			return false
		}

	case EventHeartbeat:
		s.logger.DebugContext(s.ctx, "received heartbeat")

	case EventConnected:
		s.logger.DebugContext(s.ctx, "received connected event", xslog.Data(string(event.Data)))

	case EventShutdown:
		s.logger.InfoContext(s.ctx, "server shutting down")
		return false

	default:
		s.logger.DebugContext(s.ctx, "received unknown event type", xslog.Type(event.Type))
	}
	return true
}

// ReadEvents parses Server-Sent Events frames from r and calls fn for each
// complete event until fn returns false or r is exhausted.
func ReadEvents(r io.Reader, fn func(Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var current Event
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// empty line signals end of event
			if current.Type != "" || len(current.Data) > 0 {
				if current.Type == "" {
					current.Type = "message"
				}
				if !fn(current) {
					return nil
				}
			}
			current = Event{}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if eventType, found := strings.CutPrefix(line, "event:"); found {
			current.Type = strings.TrimSpace(eventType)
		} else if data, found := strings.CutPrefix(line, "data:"); found {
			data = strings.TrimPrefix(data, " ")
			if len(current.Data) > 0 {
				current.Data = append(current.Data, '\n')
			}
			current.Data = append(current.Data, data...)
		}
	}

	return scanner.Err()
}

// WriteEvent writes a single frame in the format ReadEvents parses.
func WriteEvent(w io.Writer, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
