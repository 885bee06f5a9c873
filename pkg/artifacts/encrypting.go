package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/elite-vending/vendhub/pkg/kms"
	"github.com/elite-vending/vendhub/pkg/residency"
)

// EncryptingStore wraps a Store so payloads are encrypted before they reach
// the backend. The content hash is computed over the plaintext, so a caller
// holding the hash of a cleartext export can still look it up. The
// plaintext-to-ciphertext hash index is persisted to indexPath, so hashes
// handed out by one process stay addressable in the next.
type EncryptingStore struct {
	inner     Store
	keys      kms.Manager
	indexPath string

	mu     sync.RWMutex
	hashes map[string]string // plaintext hash -> stored ciphertext hash
}

// NewEncryptingStore wraps inner with envelope encryption under keys. The
// keyring must match the kms_key named by the tenant's resolved residency.
// An existing index at indexPath is loaded; an empty indexPath keeps the
// index in memory only, which does not survive the process.
func NewEncryptingStore(inner Store, keys kms.Manager, cfg residency.Config, indexPath string) (*EncryptingStore, error) {
	if cfg.KMSKey != "" && keys.KeyID() != cfg.KMSKey {
		return nil, fmt.Errorf("artifacts: keyring %q does not match residency kms_key %q", keys.KeyID(), cfg.KMSKey)
	}

	s := &EncryptingStore{
		inner:     inner,
		keys:      keys,
		indexPath: indexPath,
		hashes:    make(map[string]string),
	}
	if indexPath != "" {
		data, err := os.ReadFile(indexPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// First use; the index is written on the first Put.
		case err != nil:
			return nil, fmt.Errorf("artifacts: read index: %w", err)
		default:
			if err := json.Unmarshal(data, &s.hashes); err != nil {
				return nil, fmt.Errorf("artifacts: parse index: %w", err)
			}
		}
	}
	return s, nil
}

func (s *EncryptingStore) Put(ctx context.Context, data []byte) (string, error) {
	_, plainHash := contentHash(data)

	ciphertext, err := s.keys.Encrypt(data)
	if err != nil {
		return "", fmt.Errorf("artifacts: encrypt: %w", err)
	}

	storedHash, err := s.inner.Put(ctx, []byte(ciphertext))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[plainHash] = storedHash
	if err := s.saveIndexLocked(); err != nil {
		return "", err
	}
	return plainHash, nil
}

func (s *EncryptingStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	storedHash, ok := s.hashes[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", hash)
	}

	ciphertext, err := s.inner.Get(ctx, storedHash)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.keys.Decrypt(string(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("artifacts: decrypt: %w", err)
	}

	// The hash is the plaintext's content address; a mismatch means the
	// stored blob was swapped or corrupted.
	if _, got := contentHash(plaintext); got != hash {
		return nil, fmt.Errorf("artifacts: content hash mismatch for %s", hash)
	}
	return plaintext, nil
}

func (s *EncryptingStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	storedHash, ok := s.hashes[hash]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return s.inner.Exists(ctx, storedHash)
}

func (s *EncryptingStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	storedHash, ok := s.hashes[hash]
	if !ok {
		return nil
	}
	if err := s.inner.Delete(ctx, storedHash); err != nil {
		return err
	}
	delete(s.hashes, hash)
	return s.saveIndexLocked()
}

// saveIndexLocked persists the hash index. Callers hold s.mu.
func (s *EncryptingStore) saveIndexLocked() error {
	if s.indexPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("artifacts: marshal index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0700); err != nil {
		return fmt.Errorf("artifacts: index dir: %w", err)
	}
	tmpPath := s.indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("artifacts: write index: %w", err)
	}
	if err := os.Rename(tmpPath, s.indexPath); err != nil {
		return fmt.Errorf("artifacts: commit index: %w", err)
	}
	return nil
}
