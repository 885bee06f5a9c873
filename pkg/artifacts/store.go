// Package artifacts provides content-addressed archival for downloaded
// export files. Backends are selected from a tenant's resolved residency so
// an archive can never land outside the tenant's approved bucket.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Store is the contract for content-addressed archival of export artifacts.
type Store interface {
	// Put persists data and returns its content hash ("sha256:<hex>").
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by its content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether an artifact with the given hash is stored.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes an artifact by its content hash.
	Delete(ctx context.Context, hash string) error
}

// contentHash returns the hex digest and prefixed form of data.
func contentHash(data []byte) (raw, prefixed string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return raw, "sha256:" + raw
}

// parseHash validates "sha256:<hex>" and returns the hex digest.
func parseHash(hash string) (string, error) {
	if len(hash) < 8 || hash[:7] != "sha256:" {
		return "", fmt.Errorf("invalid hash format: %s", hash)
	}
	raw := hash[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid hash hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates or reuses a filesystem archive at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, prefixed := contentHash(data)
	path := filepath.Join(s.baseDir, raw+".blob")

	// Idempotent: an existing blob with this hash is already the payload.
	if _, err := os.Stat(path); err == nil {
		return prefixed, nil
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return prefixed, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", hash)
		}
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := parseHash(hash)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.baseDir, raw+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
