package chatrelay

// Message roles. Providers that use different role names translate at the
// adapter boundary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a client chat request. It is immutable once dispatched.
type CompletionRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`

	// Grounding enables web-search augmentation on providers that support it.
	// Providers without the capability ignore the flag.
	Grounding bool `json:"grounding,omitempty"`
}

// TokenUsage is a cumulative token usage snapshot. Providers report cumulative
// totals, not increments; values are non-decreasing across a single request's
// chunk sequence once first reported.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// StreamChunk is the canonical provider-agnostic streaming unit. Chunks for
// one request form a strictly ordered sequence; concatenating all Content
// fields in order reconstructs the full response text.
type StreamChunk struct {
	// Content is the incremental text delta. May be empty on chunks that only
	// carry usage or the completion flag.
	Content string

	// Usage is the latest cumulative usage snapshot, when the provider
	// reported one on this unit. Adapters never synthesize usage numbers.
	Usage *TokenUsage

	// Done marks the terminal chunk of a successfully completed stream.
	Done bool
}

// Credential is a decrypted provider credential. Its lifetime is the single
// request; it is never persisted beyond the request scope and never logged.
type Credential struct {
	Provider string
	APIKey   string
}
