package chatrelay

import "time"

// Meter observes per-request relay events for monitoring/logging. It is the
// single observability collaborator; the relay itself never logs directly.
type Meter interface {
	// OnStage is called as a request moves through the relay stages.
	OnStage(event StageEvent)

	// OnResult is called once per request when the stream ends.
	OnResult(event ResultEvent)
}

// Relay stages reported through StageEvent.
const (
	StageResolve    = "resolve"
	StageDispatch   = "dispatch"
	StageFirstChunk = "first_chunk"
)

// StageEvent is a structured per-request diagnostic record.
type StageEvent struct {
	RequestID string
	Stage     string
	Provider  string
	Model     string
	ElapsedMS int64

	// EstimatedTokens is a rough input token estimate, set on dispatch.
	EstimatedTokens int64
}

// ResultEvent describes the terminal outcome of a request.
type ResultEvent struct {
	RequestID string
	Provider  string
	Model     string
	Success   bool

	// Kind is set when Success is false.
	Kind ErrorKind

	Duration          time.Duration
	FirstChunkLatency time.Duration
	Chunks            int
	Usage             TokenUsage
	TokensPerSecond   float64
	Err               error
}
