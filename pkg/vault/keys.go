package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length produced by DeriveKey.
	KeySize = 32
	// SaltSize is the length of the random salt persisted in the settings
	// store.
	SaltSize = 16
	// KeyIterations is the PBKDF2 iteration count. Fixed rather than
	// configurable so recovery and re-key always derive with the same cost.
	KeyIterations = 100000
)

// NewSalt returns SaltSize cryptographically random bytes. Generated once per
// encrypted file and persisted; immutable unless the settings store is wiped.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives the symmetric key from a password and salt using
// PBKDF2-HMAC-SHA256. Deterministic: the same inputs always yield the same
// key. Only timing is logged, never the password or key material.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if password == "" || len(salt) == 0 {
		return nil, ErrEmptyCredential
	}
	start := time.Now()
	key := pbkdf2.Key([]byte(password), salt, KeyIterations, KeySize, sha256.New)
	slog.Debug("derived encryption key", "elapsed", time.Since(start))
	return key, nil
}

// loadSalt reads the persisted base64 salt from the settings store.
func loadSalt(s Settings) ([]byte, error) {
	v, ok := s.Get(SaltKey)
	if !ok || v == "" {
		return nil, fmt.Errorf("vault: no salt persisted: %w", ErrEmptyCredential)
	}
	salt, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("vault: decode persisted salt: %w", err)
	}
	return salt, nil
}

// loadOrCreateSalt returns the persisted salt, generating and persisting a
// fresh one on first run.
func loadOrCreateSalt(s Settings) ([]byte, error) {
	if v, ok := s.Get(SaltKey); ok && v != "" {
		salt, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("vault: decode persisted salt: %w", err)
		}
		return salt, nil
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	s.Set(SaltKey, base64.StdEncoding.EncodeToString(salt))
	if err := s.Sync(); err != nil {
		return nil, fmt.Errorf("vault: persist salt: %w", err)
	}
	return salt, nil
}
