package chatrelay

import (
	"context"
	"errors"
	"fmt"
)

// Keystore is the external credential store collaborator. Implementations
// return the decrypted API key for a user/provider pair, or an error wrapping
// ErrCredentialMissing when no credential exists or decryption fails.
type Keystore interface {
	Credential(ctx context.Context, userID, provider string) (string, error)
}

// Resolution is the outcome of credential resolution: the adapter to call,
// the model to request from it, and the decrypted credential to use.
type Resolution struct {
	Provider   Provider
	ProviderID string
	Model      string
	Credential Credential
}

// Resolver maps a requested model to a provider adapter and the user's
// decrypted credential for it. Resolution happens once per request, before
// any upstream network call.
type Resolver struct {
	registry  *ModelRegistry
	keystore  Keystore
	providers map[string]Provider
}

// NewResolver creates a Resolver over the given registry, keystore and
// provider adapters.
func NewResolver(registry *ModelRegistry, keystore Keystore, providers []Provider) *Resolver {
	provMap := make(map[string]Provider, len(providers))
	for _, p := range providers {
		provMap[p.Name()] = p
	}
	return &Resolver{
		registry:  registry,
		keystore:  keystore,
		providers: provMap,
	}
}

// Resolve determines the provider for the requested model and fetches the
// user's credential for it. A missing or undecryptable credential fails with
// ErrCredentialMissing before any upstream call is attempted.
func (r *Resolver) Resolve(ctx context.Context, userID, model string) (Resolution, error) {
	providerID := r.registry.Lookup(model)

	prov, ok := r.providers[providerID]
	if !ok {
		return Resolution{}, &RelayError{
			Err:      fmt.Errorf("%w: %q", ErrUnknownProvider, providerID),
			Provider: providerID,
			Model:    model,
		}
	}

	key, err := r.keystore.Credential(ctx, userID, providerID)
	if err != nil {
		if !errors.Is(err, ErrCredentialMissing) {
			err = fmt.Errorf("%w: %v", ErrCredentialMissing, err)
		}
		return Resolution{}, &RelayError{Err: err, Provider: providerID, Model: model}
	}
	if key == "" {
		return Resolution{}, &RelayError{Err: ErrCredentialMissing, Provider: providerID, Model: model}
	}

	return Resolution{
		Provider:   prov,
		ProviderID: providerID,
		Model:      model,
		Credential: Credential{Provider: providerID, APIKey: key},
	}, nil
}
