// Package openai adapts the OpenAI Chat Completions API using the official
// client. The client is constructed per request with the caller's own
// credential (BYOK); nothing is cached across requests.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/ineyio/chatrelay"
)

// Provider is the OpenAI adapter.
type Provider struct {
	baseURL string
	models  []string
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL (e.g. an Azure-style proxy).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithModels sets the list of supported models.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// New creates a new OpenAI provider.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }

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

// StreamChat implements chatrelay.Provider. Usage arrives on a final
// usage-only chunk via stream_options.include_usage.
func (p *Provider) StreamChat(ctx context.Context, req chatrelay.ProviderRequest) (chatrelay.ProviderStream, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(req.Credential.APIKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case chatrelay.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case chatrelay.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %v", chatrelay.ErrUpstream, err)
	}

	return &providerStream{stream: stream}, nil
}

type providerStream struct {
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	doneSent bool
}

func (s *providerStream) Next() (chatrelay.StreamChunk, error) {
	if s.doneSent {
		return chatrelay.StreamChunk{}, io.EOF
	}

	if s.stream.Next() {
		ck := s.stream.Current()
		var out chatrelay.StreamChunk
		if len(ck.Choices) > 0 {
			out.Content = ck.Choices[0].Delta.Content
		}
		if ck.Usage.TotalTokens > 0 {
			out.Usage = &chatrelay.TokenUsage{
				InputTokens:  ck.Usage.PromptTokens,
				OutputTokens: ck.Usage.CompletionTokens,
				TotalTokens:  ck.Usage.TotalTokens,
			}
		}
		return out, nil
	}

	if err := s.stream.Err(); err != nil {
		return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrNetwork, err)
	}

	// The SDK consumed the [DONE] sentinel; surface it as the terminal chunk.
	s.doneSent = true
	return chatrelay.StreamChunk{Done: true}, nil
}

func (s *providerStream) Close() error {
	return s.stream.Close()
}
