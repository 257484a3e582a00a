package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/chatrelay"
)

func testRequest() chatrelay.ProviderRequest {
	return chatrelay.ProviderRequest{
		Credential: chatrelay.Credential{Provider: "grok", APIKey: "xai-test"},
		Model:      "grok-3",
		Messages:   []chatrelay.Message{{Role: chatrelay.RoleUser, Content: "hello"}},
	}
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xai-test", r.Header.Get("Authorization"))

		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "grok-3", req.Model)
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(t *testing.T, s chatrelay.ProviderStream) []chatrelay.StreamChunk {
	t.Helper()
	var chunks []chatrelay.StreamChunk
	for {
		c, err := s.Next()
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

func TestStreamChat_Success(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"delta":{"content":"Hi"}}]}`,
		`{"choices":[{"delta":{"content":" there"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`,
		`[DONE]`,
	)

	p := New("grok", srv.URL)
	stream, err := p.StreamChat(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	chunks := drain(t, stream)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Hi", chunks[0].Content)
	assert.Equal(t, " there", chunks[1].Content)
	require.NotNil(t, chunks[2].Usage)
	assert.Equal(t, int64(8), chunks[2].Usage.TotalTokens)
	assert.True(t, chunks[3].Done)
}

func TestStreamChat_HandshakeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := New("grok", srv.URL)
	_, err := p.StreamChat(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, chatrelay.ErrUpstream)
	assert.ErrorContains(t, err, "401")
}

func TestStreamChat_MalformedChunk(t *testing.T) {
	srv := sseServer(t, `{not json`)

	p := New("grok", srv.URL)
	stream, err := p.StreamChat(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	assert.ErrorIs(t, err, chatrelay.ErrDecode)
}

func TestStreamChat_DroppedMidStream(t *testing.T) {
	// Server closes the body without ever sending [DONE].
	srv := sseServer(t, `{"choices":[{"delta":{"content":"Hi"}}]}`)

	p := New("grok", srv.URL)
	stream, err := p.StreamChat(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	c, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hi", c.Content)

	_, err = stream.Next()
	assert.ErrorIs(t, err, chatrelay.ErrNetwork)
}

func TestStreamChat_EOFAfterDone(t *testing.T) {
	srv := sseServer(t, `[DONE]`)

	p := New("grok", srv.URL)
	stream, err := p.StreamChat(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	c, err := stream.Next()
	require.NoError(t, err)
	assert.True(t, c.Done)

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSupportsModel(t *testing.T) {
	open := New("grok", "http://example.invalid")
	assert.True(t, open.SupportsModel("anything"))

	filtered := New("grok", "http://example.invalid", WithModels("grok-3"))
	assert.True(t, filtered.SupportsModel("grok-3"))
	assert.False(t, filtered.SupportsModel("grok-2"))
}

func TestWellKnownConstructors(t *testing.T) {
	assert.Equal(t, "grok", NewGrok().Name())
	assert.Equal(t, "openrouter", NewOpenRouter().Name())
}
