package chatrelay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// EventWriter is the client-facing side of the relay: one wire event per
// call, flushed as it is written. Writes block until the client connection
// accepts them, which backpressures the upstream pull loop.
type EventWriter interface {
	// Content writes a content delta event.
	Content(delta string) error

	// Error writes the single terminal error event.
	Error(ev ErrorEvent) error

	// Done writes the terminal success marker.
	Done() error
}

type contentEvent struct {
	Content string `json:"content"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// SSEWriter frames wire events as a server-push event stream
// (text/event-stream), one `data: <json>\n\n` block per event and a literal
// `data: [DONE]\n\n` as the terminal success marker.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ EventWriter = (*SSEWriter)(nil)

// NewSSEWriter prepares the response for event streaming and writes the SSE
// headers. It fails when the underlying writer cannot flush incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("chatrelay: response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) writeData(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Content implements EventWriter.
func (s *SSEWriter) Content(delta string) error {
	return s.writeData(contentEvent{Content: delta})
}

// Error implements EventWriter.
func (s *SSEWriter) Error(ev ErrorEvent) error {
	return s.writeData(errorEvent{Error: ev.Message})
}

// Done implements EventWriter.
func (s *SSEWriter) Done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
