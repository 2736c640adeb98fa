package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/garrettladley/noticeboard/internal/xhttp"
)

const (
	gzipMinSize  = 1024 // 1KB minimum before compression kicks in
	gzipEncoding = "gzip"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer      *gzip.Writer
	buf         bytes.Buffer
	wroteHeader bool
	statusCode  int
	useGzip     bool
	decided     bool
}

var (
	_ http.ResponseWriter = (*gzipResponseWriter)(nil)
	_ http.Flusher        = (*gzipResponseWriter)(nil)
	_ io.Closer           = (*gzipResponseWriter)(nil)
)

// WriteHeader defers the status until the size is known, except for event
// streams, bodiless statuses and pre-encoded responses, which pass through.
func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.wroteHeader {
		return
	}
	g.statusCode = code
	g.wroteHeader = true
	if !g.decided && g.passThrough(code) {
		g.decided = true
		g.ResponseWriter.WriteHeader(code)
	}
}

func (g *gzipResponseWriter) passThrough(code int) bool {
	h := g.ResponseWriter.Header()
	return isEventStream(h.Get(xhttp.ContentType)) ||
		h.Get(xhttp.ContentEncoding) != "" ||
		code == http.StatusNoContent ||
		code == http.StatusNotModified
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}

	if g.decided {
		if g.useGzip {
			n, err := g.writer.Write(b)
			if err != nil {
				return n, fmt.Errorf("failed to write gzip: %w", err)
			}
			return n, nil
		}
		n, err := g.ResponseWriter.Write(b)
		if err != nil {
			return n, fmt.Errorf("failed to write response: %w", err)
		}
		return n, nil
	}

	g.buf.Write(b)

	if g.buf.Len() >= gzipMinSize {
		g.decided = true
		g.useGzip = true
		if err := g.startGzip(); err != nil {
			return 0, err
		}
	}

	return len(b), nil
}

func (g *gzipResponseWriter) startGzip() error {
	g.ResponseWriter.Header().Set(xhttp.ContentEncoding, gzipEncoding)
	g.ResponseWriter.Header().Del(xhttp.ContentLength)
	g.ResponseWriter.WriteHeader(g.statusCode)

	g.writer = gzipWriterPool.Get().(*gzip.Writer)
	g.writer.Reset(g.ResponseWriter)

	if _, err := g.writer.Write(g.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	g.buf.Reset()
	return nil
}

func (g *gzipResponseWriter) flushUncompressed() error {
	g.ResponseWriter.WriteHeader(g.statusCode)
	if _, err := g.ResponseWriter.Write(g.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write uncompressed response: %w", err)
	}
	g.buf.Reset()
	return nil
}

func (g *gzipResponseWriter) Close() error {
	if !g.decided {
		g.decided = true
		return g.flushUncompressed()
	}

	if g.useGzip && g.writer != nil {
		err := g.writer.Close()
		gzipWriterPool.Put(g.writer)
		g.writer = nil
		if err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	return nil
}

func (g *gzipResponseWriter) Flush() {
	if !g.decided {
		if g.buf.Len() == 0 && !g.wroteHeader {
			return
		}
		g.decided = true
		if err := g.flushUncompressed(); err != nil {
			return
		}
	}
	if g.useGzip && g.writer != nil {
		_ = g.writer.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Gzip compresses responses of at least gzipMinSize bytes for clients that
// accept it. Event streams are never compressed: a client asking for one, or
// a handler answering with one, bypasses the buffer so every flush reaches
// the wire.
func Gzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !clientAcceptsGzip(r) || isEventStream(r.Header.Get(xhttp.Accept)) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(xhttp.Vary, xhttp.AcceptEncoding)

		gw := &gzipResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		defer gw.Close() //nolint:errcheck // best-effort flush on response completion

		next.ServeHTTP(gw, r)
	})
}

func clientAcceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get(xhttp.AcceptEncoding), gzipEncoding)
}

func isEventStream(mediaType string) bool {
	return strings.Contains(mediaType, xhttp.TextEventStream)
}
