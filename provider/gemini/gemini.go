// Package gemini adapts the Google Gemini generative language API. It is the
// one bundled adapter with web-search grounding support (the google_search
// tool).
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider is the Gemini API adapter.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	models     []string
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModels sets the list of supported models.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// New creates a new Gemini provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return true
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

// Gemini API types.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// StreamChat implements chatrelay.Provider.
func (p *Provider) StreamChat(ctx context.Context, req chatrelay.ProviderRequest) (chatrelay.ProviderStream, error) {
	body := p.buildRequest(req)
	// The key goes in a header, never the URL: transport errors echo the full
	// URL into error messages, which end up in server-side records.
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, req.Model)

	httpResp, err := p.doRequest(ctx, url, req.Credential.APIKey, body)
	if err != nil {
		return nil, err
	}

	if err := mapHTTPError(httpResp); err != nil {
		return nil, err
	}

	return &geminiStream{
		reader: bufio.NewReader(httpResp.Body),
		body:   httpResp.Body,
	}, nil
}

func (p *Provider) buildRequest(req chatrelay.ProviderRequest) geminiRequest {
	var gr geminiRequest

	for _, m := range req.Messages {
		switch m.Role {
		case chatrelay.RoleSystem:
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{}
			}
			gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case chatrelay.RoleAssistant:
			gr.Contents = append(gr.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			gr.Contents = append(gr.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}

	if req.Grounding {
		gr.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	return gr
}

func (p *Provider) doRequest(ctx context.Context, url, apiKey string, body geminiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chatrelay.ErrUpstream, err)
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	return fmt.Errorf("%w: status %d: %s", chatrelay.ErrUpstream, resp.StatusCode, string(body))
}

// geminiStream parses the alt=sse streaming format. Gemini reports cumulative
// usage on every unit and marks the last one with a finishReason; there is no
// [DONE] sentinel.
type geminiStream struct {
	reader *bufio.Reader
	body   io.ReadCloser
	done   bool
}

func (s *geminiStream) Next() (chatrelay.StreamChunk, error) {
	if s.done {
		return chatrelay.StreamChunk{}, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return chatrelay.StreamChunk{}, fmt.Errorf("%w: connection closed mid-stream", chatrelay.ErrNetwork)
			}
			return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrNetwork, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		var resp geminiResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrDecode, err)
		}

		var chunk chatrelay.StreamChunk

		if len(resp.Candidates) > 0 {
			c := resp.Candidates[0]
			if len(c.Content.Parts) > 0 {
				chunk.Content = c.Content.Parts[0].Text
			}
			if c.FinishReason != "" {
				chunk.Done = true
				s.done = true
			}
		}

		if resp.UsageMetadata.TotalTokenCount > 0 {
			chunk.Usage = &chatrelay.TokenUsage{
				InputTokens:  resp.UsageMetadata.PromptTokenCount,
				OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:  resp.UsageMetadata.TotalTokenCount,
			}
		}

		return chunk, nil
	}
}

func (s *geminiStream) Close() error {
	return s.body.Close()
}
