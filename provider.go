package chatrelay

import "context"

// Provider is the interface that LLM provider adapters must implement. Each
// adapter translates the canonical request into its upstream wire format and
// translates each upstream streaming unit back into a StreamChunk.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// SupportsModel returns true if this provider can handle the given model.
	SupportsModel(model string) bool

	// StreamChat opens a streaming chat completion. A failed handshake
	// (non-2xx, unreachable host) surfaces as an error here, before any
	// chunk is yielded.
	StreamChat(ctx context.Context, req ProviderRequest) (ProviderStream, error)
}

// ProviderRequest is the request sent to a provider adapter.
type ProviderRequest struct {
	Credential Credential
	Model      string
	Messages   []Message
	Grounding  bool
}

// ProviderStream is an ordered sequence of normalized chunks. Adapters must
// not reorder or batch beyond detecting a complete upstream unit boundary.
type ProviderStream interface {
	// Next returns the next chunk. It returns io.EOF after the terminal
	// (Done) chunk has been yielded; an io.EOF without a preceding Done
	// chunk means the upstream dropped mid-stream. Mid-stream parse and
	// transport failures surface as ErrDecode / ErrNetwork.
	Next() (StreamChunk, error)

	// Close releases the upstream connection.
	Close() error
}
