package chatrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultFirstChunkTimeout bounds time-to-first-byte from the upstream
// adapter unless overridden. Total stream duration is never bounded.
const DefaultFirstChunkTimeout = 30 * time.Second

// State is the relay's per-request lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDispatched
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Relay owns the client-facing side of one streaming completion at a time per
// call: it resolves credentials, pulls from the provider adapter's chunk
// sequence, writes each as a wire event and emits exactly one terminal marker
// or error event. A Relay is stateless across requests and safe for
// concurrent use; all per-request state lives in the call frame.
type Relay struct {
	resolver          *Resolver
	meter             Meter
	firstChunkTimeout time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithMeter sets the observability collaborator.
func WithMeter(m Meter) Option {
	return func(r *Relay) { r.meter = m }
}

// WithFirstChunkTimeout overrides the time-to-first-byte bound.
func WithFirstChunkTimeout(d time.Duration) Option {
	return func(r *Relay) { r.firstChunkTimeout = d }
}

// NewRelay creates a Relay over the given resolver.
func NewRelay(resolver *Resolver, opts ...Option) *Relay {
	r := &Relay{
		resolver:          resolver,
		firstChunkTimeout: DefaultFirstChunkTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.meter == nil {
		r.meter = noopMeter{}
	}
	return r
}

// Result is the final record of one request, exposed for the (external)
// persistence collaborator after the stream ends.
type Result struct {
	RequestID string
	State     State
	Provider  string
	Model     string

	// Text is the accumulated response text (all content deltas in order).
	Text string

	// Stats is the final accounting snapshot.
	Stats Stats

	// Err is set when State is StateFailed.
	Err error
}

type pull struct {
	chunk StreamChunk
	err   error
}

// Stream runs one completion request end to end: resolve → dispatch →
// stream → terminal event. Every failure surfaces as exactly one ErrorEvent
// on w; a success ends with exactly one terminal marker. The relay never
// retries: partial output may already be client-visible, and a blind retry
// would duplicate cost and content.
func (r *Relay) Stream(ctx context.Context, userID string, req CompletionRequest, w EventWriter) Result {
	requestID := uuid.New().String()
	started := time.Now()

	res, err := r.resolver.Resolve(ctx, userID, req.Model)
	r.meter.OnStage(StageEvent{
		RequestID: requestID,
		Stage:     StageResolve,
		Provider:  res.ProviderID,
		Model:     req.Model,
		ElapsedMS: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return r.fail(requestID, started, nil, providerOf(err), req.Model, err, w)
	}

	dispatchedAt := time.Now()
	acct := NewAccountant(dispatchedAt)
	r.meter.OnStage(StageEvent{
		RequestID:       requestID,
		Stage:           StageDispatch,
		Provider:        res.ProviderID,
		Model:           res.Model,
		ElapsedMS:       time.Since(started).Milliseconds(),
		EstimatedTokens: EstimateTokens(req.Messages),
	})

	// pctx stops the pull goroutine once this request is over, whatever the
	// caller's context does.
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := res.Provider.StreamChat(pctx, ProviderRequest{
		Credential: res.Credential,
		Model:      res.Model,
		Messages:   req.Messages,
		Grounding:  req.Grounding,
	})
	if err != nil {
		return r.fail(requestID, started, acct, res.ProviderID, res.Model, coerceUpstream(err), w)
	}
	defer stream.Close()

	// Unbuffered on purpose: the relay pulls the next chunk only after the
	// previous wire event has been written, so a slow client throttles the
	// upstream read end to end.
	pulls := make(chan pull)
	go func() {
		for {
			c, err := stream.Next()
			select {
			case pulls <- pull{chunk: c, err: err}:
			case <-pctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var timeoutC <-chan time.Time
	if r.firstChunkTimeout > 0 {
		timer := time.NewTimer(r.firstChunkTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var text strings.Builder
	streaming := false

	for {
		select {
		case <-ctx.Done():
			// Client disconnected: stop pulling, let the adapter's transport
			// teardown reclaim the upstream connection. No event can be
			// delivered anymore.
			return r.abort(requestID, started, acct, res, text.String(), ctx.Err())

		case <-timeoutC:
			err := fmt.Errorf("%w: no chunk within %s", ErrUpstream, r.firstChunkTimeout)
			return r.fail(requestID, started, acct, res.ProviderID, res.Model, err, w)

		case p := <-pulls:
			if p.err != nil {
				err := p.err
				if errors.Is(err, io.EOF) {
					// The sequence ended without a Done chunk: the upstream
					// dropped mid-stream.
					err = fmt.Errorf("%w: upstream ended before completion", ErrNetwork)
				} else if Classify(err) == KindUpstreamError && !errors.Is(err, ErrUpstream) {
					err = fmt.Errorf("%w: %v", ErrNetwork, err)
				}
				return r.fail(requestID, started, acct, res.ProviderID, res.Model, err, w)
			}

			now := time.Now()
			if !streaming {
				streaming = true
				timeoutC = nil
				r.meter.OnStage(StageEvent{
					RequestID: requestID,
					Stage:     StageFirstChunk,
					Provider:  res.ProviderID,
					Model:     res.Model,
					ElapsedMS: now.Sub(dispatchedAt).Milliseconds(),
				})
			}
			acct.RecordChunk(p.chunk, now)

			if p.chunk.Content != "" {
				text.WriteString(p.chunk.Content)
				if err := w.Content(p.chunk.Content); err != nil {
					return r.abort(requestID, started, acct, res, text.String(), err)
				}
			}

			if p.chunk.Done {
				if err := w.Done(); err != nil {
					return r.abort(requestID, started, acct, res, text.String(), err)
				}
				stats := acct.Stats(time.Now())
				r.meter.OnResult(ResultEvent{
					RequestID:         requestID,
					Provider:          res.ProviderID,
					Model:             res.Model,
					Success:           true,
					Duration:          time.Since(started),
					FirstChunkLatency: stats.FirstChunkLatency,
					Chunks:            stats.Chunks,
					Usage:             stats.Usage,
					TokensPerSecond:   stats.TokensPerSecond,
				})
				return Result{
					RequestID: requestID,
					State:     StateCompleted,
					Provider:  res.ProviderID,
					Model:     res.Model,
					Text:      text.String(),
					Stats:     stats,
				}
			}
		}
	}
}

// fail writes the single terminal error event and records the outcome.
func (r *Relay) fail(requestID string, started time.Time, acct *Accountant, provider, model string, err error, w EventWriter) Result {
	ev := EventFor(err, provider)
	// Best effort: the client connection may already be gone.
	_ = w.Error(ev)

	var stats Stats
	if acct != nil {
		stats = acct.Stats(time.Now())
	}
	r.meter.OnResult(ResultEvent{
		RequestID:         requestID,
		Provider:          provider,
		Model:             model,
		Success:           false,
		Kind:              ev.Kind,
		Duration:          time.Since(started),
		FirstChunkLatency: stats.FirstChunkLatency,
		Chunks:            stats.Chunks,
		Usage:             stats.Usage,
		Err:               err,
	})
	return Result{
		RequestID: requestID,
		State:     StateFailed,
		Provider:  provider,
		Model:     model,
		Stats:     stats,
		Err:       err,
	}
}

// abort records a failure without writing an error event, for the paths where
// the client side is already unwritable. The client treats an unterminated
// stream as an implicit failure.
func (r *Relay) abort(requestID string, started time.Time, acct *Accountant, res Resolution, text string, err error) Result {
	stats := acct.Stats(time.Now())
	r.meter.OnResult(ResultEvent{
		RequestID:         requestID,
		Provider:          res.ProviderID,
		Model:             res.Model,
		Success:           false,
		Kind:              KindNetworkFailure,
		Duration:          time.Since(started),
		FirstChunkLatency: stats.FirstChunkLatency,
		Chunks:            stats.Chunks,
		Usage:             stats.Usage,
		Err:               err,
	})
	return Result{
		RequestID: requestID,
		State:     StateFailed,
		Provider:  res.ProviderID,
		Model:     res.Model,
		Text:      text,
		Stats:     stats,
		Err:       err,
	}
}

// coerceUpstream tags untyped handshake errors as upstream failures.
func coerceUpstream(err error) error {
	switch Classify(err) {
	case KindUpstreamError:
		if !errors.Is(err, ErrUpstream) {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}
	return err
}

// providerOf extracts the provider id from a RelayError, for error events
// raised before resolution completed.
func providerOf(err error) string {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Provider
	}
	return ""
}

// noopMeter is the default meter.
type noopMeter struct{}

func (noopMeter) OnStage(StageEvent)   {}
func (noopMeter) OnResult(ResultEvent) {}
