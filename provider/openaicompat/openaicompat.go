// Package openaicompat is a universal adapter for OpenAI-compatible chat
// completion APIs (Grok/xAI, Together, OpenRouter, Ollama and others). It
// speaks the wire format directly; the first-party OpenAI adapter lives in
// provider/openai and uses the official SDK.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ineyio/chatrelay"
)

// Provider is an OpenAI-compatible API adapter.
type Provider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	models     []string
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModels sets the list of supported models.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// New creates a new OpenAI-compatible provider.
func New(name, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewGrok creates a provider for Grok/xAI.
func NewGrok(opts ...Option) *Provider {
	return New("grok", "https://api.x.ai/v1", opts...)
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(opts ...Option) *Provider {
	return New("openrouter", "https://openrouter.ai/api/v1", opts...)
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return true // no filter → accept all
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model         string         `json:"model"`
	Messages      []apiMessage   `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// apiStreamChunk is a single upstream SSE chunk.
type apiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// StreamChat implements chatrelay.Provider.
func (p *Provider) StreamChat(ctx context.Context, req chatrelay.ProviderRequest) (chatrelay.ProviderStream, error) {
	msgs := make([]apiMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}
	body := apiRequest{
		Model:         req.Model,
		Messages:      msgs,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}

	httpResp, err := p.doRequest(ctx, req.Credential, body)
	if err != nil {
		return nil, err
	}

	if err := mapHTTPError(httpResp); err != nil {
		return nil, err
	}

	return &sseStream{
		reader: bufio.NewReader(httpResp.Body),
		body:   httpResp.Body,
	}, nil
}

func (p *Provider) doRequest(ctx context.Context, cred chatrelay.Credential, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Handshake never happened; this is an upstream failure, not a
		// mid-stream drop.
		return nil, fmt.Errorf("%w: %v", chatrelay.ErrUpstream, err)
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read a little of the body for server-side diagnostics.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	return fmt.Errorf("%w: status %d: %s", chatrelay.ErrUpstream, resp.StatusCode, string(body))
}

// sseStream parses Server-Sent Events from an HTTP response body into
// canonical chunks. The [DONE] sentinel becomes the terminal Done chunk.
type sseStream struct {
	reader *bufio.Reader
	body   io.ReadCloser
	done   bool
}

func (s *sseStream) Next() (chatrelay.StreamChunk, error) {
	if s.done {
		return chatrelay.StreamChunk{}, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Connection ended before [DONE]: mid-stream drop.
				return chatrelay.StreamChunk{}, fmt.Errorf("%w: connection closed mid-stream", chatrelay.ErrNetwork)
			}
			return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrNetwork, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.done = true
			return chatrelay.StreamChunk{Done: true}, nil
		}

		var chunk apiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrDecode, err)
		}

		var result chatrelay.StreamChunk
		if len(chunk.Choices) > 0 {
			result.Content = chunk.Choices[0].Delta.Content
		}
		if chunk.Usage != nil {
			result.Usage = &chatrelay.TokenUsage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}

		return result, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
