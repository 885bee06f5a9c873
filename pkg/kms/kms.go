// Package kms provides the key management used to encrypt export artifacts
// at rest before archival. Keys are file-backed, versioned, and bound to a
// logical key id so a keyring can be matched against a tenant's resolved
// residency kms_key.
package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Manager defines the key management interface.
type Manager interface {
	// KeyID returns the logical identifier of this keyring, compared against
	// a residency's kms_key.
	KeyID() string

	// Encrypt encrypts plaintext, returning versioned ciphertext ("v<N>:<base64>").
	Encrypt(plaintext []byte) (string, error)

	// Decrypt decrypts versioned ciphertext produced by Encrypt.
	Decrypt(ciphertext string) ([]byte, error)

	// Rotate generates a new active key. Old keys remain for decryption.
	Rotate() (version int, err error)

	// ActiveVersion returns the current active key version.
	ActiveVersion() int
}

// keystore is the on-disk JSON format for persisted keys.
type keystore struct {
	KeyID         string            `json:"key_id"`
	ActiveVersion int               `json:"active_version"`
	Keys          map[string]string `json:"keys"` // version -> base64-encoded 32-byte key
}

// LocalKeyring is a file-backed Manager using AES-256-GCM with versioned keys.
type LocalKeyring struct {
	mu    sync.RWMutex
	store keystore
	path  string
	keys  map[int][]byte
}

// NewLocalKeyring loads or creates a local keystore at the given path under
// the given logical key id. A new keystore starts at version 1. Opening an
// existing keystore with a different key id fails.
func NewLocalKeyring(keystorePath, keyID string) (*LocalKeyring, error) {
	if keyID == "" {
		return nil, errors.New("kms: key id is required")
	}

	k := &LocalKeyring{
		path: keystorePath,
		keys: make(map[int][]byte),
	}

	if _, err := os.Stat(keystorePath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(keystorePath), 0700); err != nil {
			return nil, fmt.Errorf("kms: create dir: %w", err)
		}

		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("kms: generate key: %w", err)
		}

		k.store = keystore{
			KeyID:         keyID,
			ActiveVersion: 1,
			Keys:          map[string]string{"1": base64.StdEncoding.EncodeToString(key)},
		}
		k.keys[1] = key

		if err := k.persist(); err != nil {
			return nil, err
		}
		return k, nil
	}

	data, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("kms: read keystore: %w", err)
	}
	if err := json.Unmarshal(data, &k.store); err != nil {
		return nil, fmt.Errorf("kms: parse keystore: %w", err)
	}

	if k.store.KeyID != keyID {
		return nil, fmt.Errorf("kms: keystore holds key %q, wanted %q", k.store.KeyID, keyID)
	}

	for vStr, encoded := range k.store.Keys {
		v, err := strconv.Atoi(vStr)
		if err != nil {
			return nil, fmt.Errorf("kms: invalid version %q: %w", vStr, err)
		}
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("kms: decode key v%d: %w", v, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("kms: key v%d invalid length %d (need 32)", v, len(key))
		}
		k.keys[v] = key
	}

	if _, ok := k.keys[k.store.ActiveVersion]; !ok {
		return nil, fmt.Errorf("kms: active version %d not in keystore", k.store.ActiveVersion)
	}

	return k, nil
}

// KeyID returns the keyring's logical key identifier.
func (k *LocalKeyring) KeyID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.store.KeyID
}

// Encrypt encrypts plaintext with the active key, returning "v<N>:<base64(nonce+ciphertext)>".
func (k *LocalKeyring) Encrypt(plaintext []byte) (string, error) {
	k.mu.RLock()
	activeVersion := k.store.ActiveVersion
	key := k.keys[activeVersion]
	k.mu.RUnlock()

	ct, err := aesGCMEncrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v%d:%s", activeVersion, base64.StdEncoding.EncodeToString(ct)), nil
}

// Decrypt decrypts versioned ciphertext. Supports any key version in the store.
func (k *LocalKeyring) Decrypt(ciphertext string) ([]byte, error) {
	version, payload, err := parseVersioned(ciphertext)
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	key, ok := k.keys[version]
	k.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("kms: unknown key version %d", version)
	}

	ct, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("kms: decode ciphertext: %w", err)
	}
	return aesGCMDecrypt(key, ct)
}

// Rotate generates a new key version and persists the updated keystore.
func (k *LocalKeyring) Rotate() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	newVersion := k.store.ActiveVersion + 1

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return 0, fmt.Errorf("kms: generate key: %w", err)
	}

	k.store.Keys[strconv.Itoa(newVersion)] = base64.StdEncoding.EncodeToString(key)
	k.store.ActiveVersion = newVersion
	k.keys[newVersion] = key

	if err := k.persist(); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// ActiveVersion returns the current active key version.
func (k *LocalKeyring) ActiveVersion() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.store.ActiveVersion
}

// persist writes the keystore to disk with restricted permissions.
func (k *LocalKeyring) persist() error {
	data, err := json.MarshalIndent(k.store, "", "  ")
	if err != nil {
		return fmt.Errorf("kms: marshal keystore: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0600); err != nil {
		return fmt.Errorf("kms: write keystore: %w", err)
	}
	return nil
}

func aesGCMEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("kms: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("kms: gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("kms: nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func aesGCMDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("kms: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("kms: gcm: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("kms: ciphertext too short")
	}
	nonce, ct := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}

// parseVersioned splits "v<N>:<payload>" into (N, payload).
func parseVersioned(s string) (int, string, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, "", fmt.Errorf("kms: missing version prefix in %q", s)
	}
	idx := strings.Index(s, ":")
	if idx < 2 {
		return 0, "", fmt.Errorf("kms: malformed versioned string %q", s)
	}
	v, err := strconv.Atoi(s[1:idx])
	if err != nil {
		return 0, "", fmt.Errorf("kms: parse version: %w", err)
	}
	return v, s[idx+1:], nil
}
