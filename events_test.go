package chatrelay_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cr "github.com/ineyio/chatrelay"
)

func TestSSEWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := cr.NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Content("Hello"))
	require.NoError(t, w.Content(" world"))
	require.NoError(t, w.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	want := "data: {\"content\":\"Hello\"}\n\n" +
		"data: {\"content\":\" world\"}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_ErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := cr.NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Error(cr.ErrorEvent{Kind: cr.KindUpstreamError, Message: "Failed to generate response"}))

	assert.Equal(t, "data: {\"error\":\"Failed to generate response\"}\n\n", rec.Body.String())
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := cr.NewSSEWriter(noFlushWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}
