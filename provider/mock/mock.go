// Package mock is a fake provider for testing.
package mock

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/ineyio/chatrelay"
)

// Provider is a mock chat provider for testing.
type Provider struct {
	name          string
	models        []string
	chunks        []chatrelay.StreamChunk
	chunkDelay    time.Duration
	handshakeErr  error
	streamErr     error
	streamErrAt   int
	truncateAfter int
	callCount     atomic.Int64
	pullCount     atomic.Int64
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options. By default it streams
// "Hi", " there", "!" and finishes with usage of 5 input and 3 output tokens.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:        "mock",
		streamErrAt: -1,
		chunks: []chatrelay.StreamChunk{
			{Content: "Hi"},
			{Content: " there"},
			{
				Content: "!",
				Usage:   &chatrelay.TokenUsage{InputTokens: 5, OutputTokens: 3, TotalTokens: 8},
				Done:    true,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithModels sets supported models. By default all models are accepted.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// WithChunks sets the chunks the stream yields.
func WithChunks(chunks ...chatrelay.StreamChunk) Option {
	return func(p *Provider) { p.chunks = chunks }
}

// WithChunkDelay adds simulated latency before each chunk.
func WithChunkDelay(d time.Duration) Option {
	return func(p *Provider) { p.chunkDelay = d }
}

// WithHandshakeError makes StreamChat fail before any stream is opened.
func WithHandshakeError(err error) Option {
	return func(p *Provider) { p.handshakeErr = err }
}

// WithStreamError makes the stream return err in place of chunk n (0-based).
func WithStreamError(err error, n int) Option {
	return func(p *Provider) {
		p.streamErr = err
		p.streamErrAt = n
	}
}

// WithTruncateAfter makes the stream hit io.EOF after n chunks without ever
// yielding a Done chunk, simulating a connection dropped mid-stream.
func WithTruncateAfter(n int) Option {
	return func(p *Provider) { p.truncateAfter = n }
}

func (p *Provider) Name() string { return p.name }

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
	p.callCount.Add(1)

	if p.handshakeErr != nil {
		return nil, p.handshakeErr
	}

	chunks := p.chunks
	if p.truncateAfter > 0 && p.truncateAfter < len(chunks) {
		chunks = chunks[:p.truncateAfter]
	}

	return &mockStream{
		ctx:    ctx,
		chunks: chunks,
		delay:  p.chunkDelay,
		errAt:  p.streamErrAt,
		err:    p.streamErr,
		pulls:  &p.pullCount,
	}, nil
}

// CallCount returns the number of StreamChat calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// PullCount returns the number of Next calls made across this provider's
// streams.
func (p *Provider) PullCount() int64 { return p.pullCount.Load() }

type mockStream struct {
	ctx    context.Context
	chunks []chatrelay.StreamChunk
	delay  time.Duration
	errAt  int
	err    error
	pulls  *atomic.Int64
	index  int
	done   bool
}

func (s *mockStream) Next() (chatrelay.StreamChunk, error) {
	s.pulls.Add(1)
	if s.done {
		return chatrelay.StreamChunk{}, io.EOF
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return chatrelay.StreamChunk{}, s.ctx.Err()
		}
	}

	if s.err != nil && s.index == s.errAt {
		s.done = true
		return chatrelay.StreamChunk{}, s.err
	}

	if s.index >= len(s.chunks) {
		// A stream that runs out without a Done chunk reads as a drop.
		return chatrelay.StreamChunk{}, io.EOF
	}

	chunk := s.chunks[s.index]
	s.index++
	if chunk.Done {
		s.done = true
	}
	return chunk, nil
}

func (s *mockStream) Close() error { return nil }
