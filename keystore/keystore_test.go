package keystore

import (
	"context"
	"crypto/rand"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/chatrelay"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, key)
	require.NoError(t, err)
	return key
}

func TestAESGCM_RoundTrip(t *testing.T) {
	c, err := NewAESGCM(testKey(t))
	require.NoError(t, err)

	blob, err := c.Seal([]byte("sk-live-secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "sk-live-secret")

	plaintext, err := c.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-secret", string(plaintext))
}

func TestAESGCM_WrongKeyFails(t *testing.T) {
	c1, err := NewAESGCM(testKey(t))
	require.NoError(t, err)
	c2, err := NewAESGCM(testKey(t))
	require.NoError(t, err)

	blob, err := c1.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Open(blob)
	assert.Error(t, err)
}

func TestAESGCM_RejectsShortKey(t *testing.T) {
	_, err := NewAESGCM([]byte("too short"))
	assert.Error(t, err)
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	c, err := NewAESGCM(testKey(t))
	require.NoError(t, err)
	return NewFileStore(filepath.Join(t.TempDir(), "keys.toml"), c)
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetKey("user-1", "openai", "sk-one"))
	require.NoError(t, s.SetKey("user-1", "anthropic", "sk-two"))
	require.NoError(t, s.SetKey("user-2", "openai", "sk-three"))

	key, err := s.Credential(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-one", key)

	key, err = s.Credential(ctx, "user-2", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-three", key)
}

func TestFileStore_MissingCredential(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	// Missing file entirely.
	_, err := s.Credential(ctx, "user-1", "openai")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)

	// File exists, entry does not.
	require.NoError(t, s.SetKey("user-1", "openai", "sk-one"))
	_, err = s.Credential(ctx, "user-1", "anthropic")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)
	_, err = s.Credential(ctx, "user-2", "openai")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)
}

func TestFileStore_RemoveKey(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetKey("user-1", "openai", "sk-one"))
	require.NoError(t, s.RemoveKey("user-1", "openai"))

	_, err := s.Credential(ctx, "user-1", "openai")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)
}

func TestFileStore_UndecryptableBlobIsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.toml")

	c1, err := NewAESGCM(testKey(t))
	require.NoError(t, err)
	require.NoError(t, NewFileStore(path, c1).SetKey("user-1", "openai", "sk-one"))

	// Same file, different key.
	c2, err := NewAESGCM(testKey(t))
	require.NoError(t, err)
	_, err = NewFileStore(path, c2).Credential(context.Background(), "user-1", "openai")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Credential(ctx, "user-1", "openai")
	assert.ErrorIs(t, err, chatrelay.ErrCredentialMissing)

	m.SetKey("user-1", "openai", "sk-one")
	key, err := m.Credential(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-one", key)
}
