package chatrelay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cr "github.com/ineyio/chatrelay"
	"github.com/ineyio/chatrelay/keystore"
	"github.com/ineyio/chatrelay/provider/mock"
)

func headerIdentity(r *http.Request) (string, error) {
	return r.Header.Get("X-User-ID"), nil
}

type captureRecorder struct {
	mu      sync.Mutex
	userIDs []string
	results []cr.Result
}

func (c *captureRecorder) Record(_ context.Context, userID string, _ cr.CompletionRequest, res cr.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userIDs = append(c.userIDs, userID)
	c.results = append(c.results, res)
}

func newTestServer(t *testing.T, prov cr.Provider, key string, opts ...cr.HandlerOption) *httptest.Server {
	t.Helper()
	ks := keystore.NewMemory()
	if key != "" {
		ks.SetKey("user-1", prov.Name(), key)
	}
	resolver := cr.NewResolver(cr.NewModelRegistry(prov.Name()), ks, []cr.Provider{prov})
	h := cr.NewHandler(cr.NewRelay(resolver), headerIdentity, opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func postCompletion(t *testing.T, srv *httptest.Server, userID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestHandler_StreamsCompletion(t *testing.T) {
	rec := &captureRecorder{}
	srv := newTestServer(t, mock.New(), "sk-test", cr.WithRecorder(rec))

	resp := postCompletion(t, srv, "user-1", `{"model":"mock-model","messages":[{"role":"user","content":"hello"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	want := "data: {\"content\":\"Hi\"}\n\n" +
		"data: {\"content\":\" there\"}\n\n" +
		"data: {\"content\":\"!\"}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, string(body))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "user-1", rec.userIDs[0])
	assert.Equal(t, "Hi there!", rec.results[0].Text)
	assert.Equal(t, int64(8), rec.results[0].Stats.Usage.TotalTokens)
}

func TestHandler_MissingCredentialStreamsError(t *testing.T) {
	rec := &captureRecorder{}
	srv := newTestServer(t, mock.New(), "", cr.WithRecorder(rec))

	resp := postCompletion(t, srv, "user-1", `{"model":"mock-model","messages":[{"role":"user","content":"hello"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "stream already started; errors ride the stream")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `data: {"error":"No API key found for mock. Please add one in Settings."}`)
	assert.NotContains(t, string(body), "[DONE]")
	assert.Empty(t, rec.results, "failed streams are never recorded")
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, mock.New(), "sk-test")

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_Unauthorized(t *testing.T) {
	srv := newTestServer(t, mock.New(), "sk-test")

	resp := postCompletion(t, srv, "", `{"model":"mock-model","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_BadRequest(t *testing.T) {
	srv := newTestServer(t, mock.New(), "sk-test")

	resp := postCompletion(t, srv, "user-1", `{not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postCompletion(t, srv, "user-1", `{"model":"mock-model","messages":[]}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
