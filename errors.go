package chatrelay

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrCredentialMissing means no usable credential exists for the resolved
	// provider, or the stored blob could not be decrypted.
	ErrCredentialMissing = errors.New("chatrelay: no credential for provider")

	// ErrUnknownProvider means the registry resolved a provider id for which
	// no adapter is registered.
	ErrUnknownProvider = errors.New("chatrelay: unknown provider")

	// ErrUpstream covers non-2xx or malformed initial responses from the
	// provider, including first-chunk timeouts.
	ErrUpstream = errors.New("chatrelay: upstream error")

	// ErrDecode means a streaming unit could not be parsed into a StreamChunk.
	ErrDecode = errors.New("chatrelay: decode failure")

	// ErrNetwork means the upstream transport dropped mid-stream.
	ErrNetwork = errors.New("chatrelay: network failure")
)

// ErrorKind classifies a terminal failure for the wire protocol.
type ErrorKind string

const (
	KindCredentialMissing ErrorKind = "credential_missing"
	KindUpstreamError     ErrorKind = "upstream_error"
	KindDecodeFailure     ErrorKind = "decode_failure"
	KindNetworkFailure    ErrorKind = "network_failure"
)

// ErrorEvent is the single terminal error emitted for a failed request. At
// most one is emitted per request, and it precludes any further StreamChunk.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
}

// RelayError wraps an error with per-request context.
type RelayError struct {
	Err       error
	RequestID string
	Provider  string
	Model     string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("chatrelay: request=%s provider=%s model=%s: %v",
		e.RequestID, e.Provider, e.Model, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Classify maps an error from any relay stage to its ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return KindCredentialMissing
	case errors.Is(err, ErrDecode):
		return KindDecodeFailure
	case errors.Is(err, ErrNetwork):
		return KindNetworkFailure
	default:
		return KindUpstreamError
	}
}

// EventFor builds the client-visible ErrorEvent for a failure. Credential
// failures get an actionable message; everything else gets a generic one so
// upstream internals never leak to the client. Full detail stays in
// server-side diagnostics.
func EventFor(err error, provider string) ErrorEvent {
	kind := Classify(err)
	if kind == KindCredentialMissing {
		return ErrorEvent{
			Kind:    kind,
			Message: fmt.Sprintf("No API key found for %s. Please add one in Settings.", provider),
		}
	}
	return ErrorEvent{Kind: kind, Message: "Failed to generate response"}
}
