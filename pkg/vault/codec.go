package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// NonceSize is the AES-GCM nonce length. The nonce occupies the first
// NonceSize bytes of every encrypted blob.
const NonceSize = 12

// Encrypt seals plaintext with AES-256-GCM under key, using a fresh random
// nonce per call so nonces never repeat for the same key. No associated data
// is used. The returned blob is nonce || ciphertext+tag. An empty plaintext
// produces a nonce-only blob, the "empty database" marker, without running
// the cipher.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	if len(plaintext) == 0 {
		return nonce, nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. A blob shorter than the nonce is
// ErrInvalidFormat; a blob of exactly nonce length is the empty-database
// marker and yields an empty plaintext. A failed tag check returns
// ErrAuthenticationFailed, which is the only signal available for both a
// wrong password and a corrupted file.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrInvalidFormat
	}
	if len(blob) == NonceSize {
		return []byte{}, nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return gcm, nil
}
