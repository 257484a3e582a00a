package chatrelay

import (
	"context"
	"encoding/json"
	"net/http"
)

// IdentityFunc extracts the authenticated user id from a request. Identity is
// supplied externally; the relay never authenticates users itself.
type IdentityFunc func(r *http.Request) (string, error)

// Recorder is the persistence collaborator notified after a stream completes,
// with the final accumulated text and usage.
type Recorder interface {
	Record(ctx context.Context, userID string, req CompletionRequest, res Result)
}

// Handler hosts the relay on a plain net/http endpoint speaking the
// server-push event stream protocol.
type Handler struct {
	relay    *Relay
	identity IdentityFunc
	recorder Recorder
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRecorder sets the persistence collaborator.
func WithRecorder(rec Recorder) HandlerOption {
	return func(h *Handler) { h.recorder = rec }
}

// NewHandler creates an http.Handler serving streaming completions.
func NewHandler(relay *Relay, identity IdentityFunc, opts ...HandlerOption) *Handler {
	h := &Handler{relay: relay, identity: identity}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := h.identity(r)
	if err != nil || userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}

	sw, err := NewSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	result := h.relay.Stream(r.Context(), userID, req, sw)

	// Partial output from failed streams is never recorded; the caller
	// decides whether to resubmit.
	if h.recorder != nil && result.State == StateCompleted {
		h.recorder.Record(r.Context(), userID, req, result)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
