package chatrelay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cr "github.com/ineyio/chatrelay"
	"github.com/ineyio/chatrelay/keystore"
	"github.com/ineyio/chatrelay/provider/mock"
)

func TestResolve_Success(t *testing.T) {
	prov := mock.New(mock.WithName("openai"))
	ks := keystore.NewMemory()
	ks.SetKey("user-1", "openai", "sk-live")

	r := cr.NewResolver(cr.NewModelRegistry("openai"), ks, []cr.Provider{prov})

	res, err := r.Resolve(context.Background(), "user-1", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", res.ProviderID)
	assert.Equal(t, "gpt-4o", res.Model)
	assert.Equal(t, "sk-live", res.Credential.APIKey)
	assert.Same(t, prov, res.Provider)
}

func TestResolve_UnknownProvider(t *testing.T) {
	ks := keystore.NewMemory()
	r := cr.NewResolver(cr.NewModelRegistry("openai"), ks, nil)

	_, err := r.Resolve(context.Background(), "user-1", "gpt-4o")
	require.Error(t, err)
	assert.ErrorIs(t, err, cr.ErrUnknownProvider)

	var re *cr.RelayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "openai", re.Provider)
	assert.Equal(t, "gpt-4o", re.Model)
}

func TestResolve_MissingCredential(t *testing.T) {
	prov := mock.New(mock.WithName("anthropic"))
	ks := keystore.NewMemory()
	ks.SetKey("user-1", "openai", "sk-live") // wrong provider

	r := cr.NewResolver(cr.NewModelRegistry("anthropic"), ks, []cr.Provider{prov})

	_, err := r.Resolve(context.Background(), "user-1", "claude-sonnet-4-20250514")
	assert.ErrorIs(t, err, cr.ErrCredentialMissing)
}

// Keystore failures that are not already typed coerce to missing-credential.
func TestResolve_KeystoreFailureCoerced(t *testing.T) {
	prov := mock.New(mock.WithName("openai"))
	r := cr.NewResolver(cr.NewModelRegistry("openai"), failingKeystore{}, []cr.Provider{prov})

	_, err := r.Resolve(context.Background(), "user-1", "gpt-4o")
	assert.ErrorIs(t, err, cr.ErrCredentialMissing)
}

type failingKeystore struct{}

func (failingKeystore) Credential(context.Context, string, string) (string, error) {
	return "", errors.New("disk on fire")
}
