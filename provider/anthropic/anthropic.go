// Package anthropic adapts the Anthropic Messages API using the official
// client. Anthropic reports input tokens on message_start and output tokens
// on message_delta events; the adapter stitches these into cumulative usage
// snapshots.
package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/ineyio/chatrelay"
)

const defaultMaxTokens = 4096

// Provider is the Anthropic adapter.
type Provider struct {
	baseURL   string
	maxTokens int64
	models    []string
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithMaxTokens sets the max_tokens sent upstream (the API requires one).
func WithMaxTokens(n int64) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithModels sets the list of supported models.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// New creates a new Anthropic provider.
func New(opts ...Option) *Provider {
	p := &Provider{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "anthropic" }

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

// StreamChat implements chatrelay.Provider.
func (p *Provider) StreamChat(ctx context.Context, req chatrelay.ProviderRequest) (chatrelay.ProviderStream, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(req.Credential.APIKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	var system []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case chatrelay.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case chatrelay.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: p.maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %v", chatrelay.ErrUpstream, err)
	}

	return &providerStream{stream: stream}, nil
}

type providerStream struct {
	stream      *ssestream.Stream[anthropic.MessageStreamEventUnion]
	inputTokens int64
	doneSent    bool
}

func (s *providerStream) Next() (chatrelay.StreamChunk, error) {
	if s.doneSent {
		return chatrelay.StreamChunk{}, io.EOF
	}

	for s.stream.Next() {
		event := s.stream.Current()
		switch v := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			s.inputTokens = v.Message.Usage.InputTokens
			return chatrelay.StreamChunk{
				Usage: &chatrelay.TokenUsage{
					InputTokens: s.inputTokens,
					TotalTokens: s.inputTokens,
				},
			}, nil

		case anthropic.ContentBlockDeltaEvent:
			if v.Delta.Text != "" {
				return chatrelay.StreamChunk{Content: v.Delta.Text}, nil
			}

		case anthropic.MessageDeltaEvent:
			out := v.Usage.OutputTokens
			return chatrelay.StreamChunk{
				Usage: &chatrelay.TokenUsage{
					InputTokens:  s.inputTokens,
					OutputTokens: out,
					TotalTokens:  s.inputTokens + out,
				},
			}, nil

		case anthropic.MessageStopEvent:
			s.doneSent = true
			return chatrelay.StreamChunk{Done: true}, nil
		}
	}

	if err := s.stream.Err(); err != nil {
		return chatrelay.StreamChunk{}, fmt.Errorf("%w: %v", chatrelay.ErrNetwork, err)
	}
	return chatrelay.StreamChunk{}, fmt.Errorf("%w: stream ended before message_stop", chatrelay.ErrNetwork)
}

func (s *providerStream) Close() error {
	return s.stream.Close()
}
