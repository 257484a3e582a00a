// Package keystore provides credential store implementations for the relay's
// Keystore collaborator: a TOML-file-backed store of per-user encrypted blobs
// and an in-memory store for tests and examples. Decryption is delegated to a
// Cipher so the encryption-at-rest scheme stays swappable.
package keystore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/ineyio/chatrelay"
)

// Cipher opens (and seals) credential blobs.
type Cipher interface {
	// Open decrypts a stored blob into the plaintext credential.
	Open(blob []byte) ([]byte, error)

	// Seal encrypts a plaintext credential for storage.
	Seal(plaintext []byte) ([]byte, error)
}

type fileFormat struct {
	Version int                  `toml:"version"`
	Users   map[string]userEntry `toml:"users"`
}

type userEntry struct {
	Providers map[string]blobEntry `toml:"providers"`
}

type blobEntry struct {
	// Blob is the base64-encoded encrypted credential.
	Blob string `toml:"blob"`
}

const currentVersion = 0

// FileStore reads per-user encrypted credentials from a TOML file. The file
// is re-read on every lookup; it is small and read-mostly, and this keeps
// concurrent requests for different users from interfering.
type FileStore struct {
	path   string
	cipher Cipher
}

var _ chatrelay.Keystore = (*FileStore)(nil)

// NewFileStore creates a FileStore at the given path using the given cipher.
func NewFileStore(path string, cipher Cipher) *FileStore {
	return &FileStore{path: path, cipher: cipher}
}

// Credential implements chatrelay.Keystore. A missing file, missing entry,
// malformed blob, or failed decryption all surface as ErrCredentialMissing.
func (s *FileStore) Credential(_ context.Context, userID, provider string) (string, error) {
	creds, err := s.load()
	if err != nil {
		return "", err
	}

	entry, ok := creds.Users[userID].Providers[provider]
	if !ok {
		return "", chatrelay.ErrCredentialMissing
	}

	blob, err := base64.StdEncoding.DecodeString(entry.Blob)
	if err != nil {
		return "", fmt.Errorf("%w: malformed blob: %v", chatrelay.ErrCredentialMissing, err)
	}

	plaintext, err := s.cipher.Open(blob)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt: %v", chatrelay.ErrCredentialMissing, err)
	}

	return string(plaintext), nil
}

// SetKey seals and stores an API key for the given user and provider.
func (s *FileStore) SetKey(userID, provider, key string) error {
	creds, err := s.load()
	if err != nil {
		return err
	}

	blob, err := s.cipher.Seal([]byte(key))
	if err != nil {
		return fmt.Errorf("keystore: seal credential: %w", err)
	}

	if creds.Users == nil {
		creds.Users = make(map[string]userEntry)
	}
	user := creds.Users[userID]
	if user.Providers == nil {
		user.Providers = make(map[string]blobEntry)
	}
	user.Providers[provider] = blobEntry{Blob: base64.StdEncoding.EncodeToString(blob)}
	creds.Users[userID] = user

	return s.save(creds)
}

// RemoveKey deletes the stored credential for a user and provider.
func (s *FileStore) RemoveKey(userID, provider string) error {
	creds, err := s.load()
	if err != nil {
		return err
	}
	if user, ok := creds.Users[userID]; ok {
		delete(user.Providers, provider)
	}
	return s.save(creds)
}

func (s *FileStore) load() (*fileFormat, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileFormat{Version: currentVersion, Users: make(map[string]userEntry)}, nil
		}
		return nil, fmt.Errorf("keystore: read credentials: %w", err)
	}

	creds := &fileFormat{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("keystore: parse credentials: %w", err)
	}
	if creds.Users == nil {
		creds.Users = make(map[string]userEntry)
	}
	return creds, nil
}

func (s *FileStore) save(creds *fileFormat) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("keystore: encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("keystore: write credentials: %w", err)
	}
	return nil
}

// Memory is an in-memory keystore for tests and examples. Keys are stored in
// plaintext; do not use it outside of tests.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]map[string]string
}

var _ chatrelay.Keystore = (*Memory)(nil)

// NewMemory creates an empty in-memory keystore.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]map[string]string)}
}

// SetKey stores an API key for the given user and provider.
func (m *Memory) SetKey(userID, provider, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[userID] == nil {
		m.keys[userID] = make(map[string]string)
	}
	m.keys[userID][provider] = key
}

// Credential implements chatrelay.Keystore.
func (m *Memory) Credential(_ context.Context, userID, provider string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[userID][provider]
	if !ok {
		return "", chatrelay.ErrCredentialMissing
	}
	return key, nil
}
