package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/garrettladley/noticeboard/internal/xslog"
)

// Sink surfaces a newly arrived notification to the user.
type Sink interface {
	Notify(ctx context.Context, title, body string) error
}

type Func func(ctx context.Context, title, body string) error

func (f Func) Notify(ctx context.Context, title, body string) error { return f(ctx, title, body) }

type Multi []Sink

// Notify calls every sink and joins their errors.
func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, title, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = xslog.FromContext(ctx)
	}
	logger.InfoContext(ctx, "notification", xslog.Title(title), xslog.Body(body))
	return nil
}

// Writer prints one line per alert.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Notify(_ context.Context, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if body == "" {
		_, err = fmt.Fprintf(s.w, "* %s\n", title)
	} else {
		_, err = fmt.Fprintf(s.w, "* %s: %s\n", title, body)
	}
	if err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

// Discard drops every alert.
var Discard Sink = Func(func(context.Context, string, string) error { return nil })
