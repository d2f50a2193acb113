// Package sse implements server-sent event plumbing for streamed turns.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer writes server-sent events. It sets the SSE headers on first use
// and flushes after every event so deltas reach the client immediately.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps a response writer for SSE. Fails when the underlying
// writer cannot flush, which means streaming is impossible.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

func (s *Writer) start() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// WriteEvent writes one named event with a JSON payload and flushes.
func (s *Writer) WriteEvent(event string, data interface{}) error {
	s.start()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write event %s: %w", event, err)
	}

	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment line and flushes. Comment lines
// are ignored by clients; they only hold the connection open through
// proxies.
func (s *Writer) WriteKeepAlive() error {
	s.start()

	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}

	s.flusher.Flush()
	return nil
}
