package chatrelay

import "time"

// Stats is a point-in-time view of a request's accounting.
type Stats struct {
	Usage  TokenUsage
	Chunks int

	// Elapsed is wall-clock time since the upstream call was dispatched.
	Elapsed time.Duration

	// FirstChunkLatency is the time from dispatch to the first chunk.
	// Zero until the first chunk arrives.
	FirstChunkLatency time.Duration

	// TokensPerSecond is OutputTokens / Elapsed. The denominator is measured
	// from dispatch (first token requested), not from connection open, so
	// credential-resolution latency never skews the rate. Diagnostic only.
	TokensPerSecond float64
}

// Accountant tracks running token usage and throughput for one request. It is
// owned by a single relay loop and is not safe for concurrent use; nothing it
// holds is shared across requests.
type Accountant struct {
	dispatchedAt time.Time
	firstChunkAt time.Time
	usage        TokenUsage
	chunks       int
}

// NewAccountant starts accounting at the moment the upstream call was
// dispatched.
func NewAccountant(dispatchedAt time.Time) *Accountant {
	return &Accountant{dispatchedAt: dispatchedAt}
}

// RecordChunk registers one received chunk and folds in its usage snapshot,
// if any.
func (a *Accountant) RecordChunk(c StreamChunk, now time.Time) {
	if a.chunks == 0 {
		a.firstChunkAt = now
	}
	a.chunks++
	a.Update(c.Usage)
}

// Update replaces the running totals with the given cumulative snapshot.
// Providers report cumulative, not incremental, usage; the accountant tracks
// the latest snapshot rather than summing deltas. A nil snapshot is a no-op.
func (a *Accountant) Update(u *TokenUsage) {
	if u == nil {
		return
	}
	a.usage = *u
}

// Stats computes the current accounting view at the given instant. On stream
// completion this is the authoritative usage record for the persistence
// collaborator.
func (a *Accountant) Stats(now time.Time) Stats {
	s := Stats{
		Usage:   a.usage,
		Chunks:  a.chunks,
		Elapsed: now.Sub(a.dispatchedAt),
	}
	if !a.firstChunkAt.IsZero() {
		s.FirstChunkLatency = a.firstChunkAt.Sub(a.dispatchedAt)
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.TokensPerSecond = float64(a.usage.OutputTokens) / secs
	}
	return s
}
