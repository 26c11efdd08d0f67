package vault

import "errors"

var (
	// ErrEmptyCredential indicates a zero-length password or salt. This is a
	// programmer error; key derivation never proceeds with empty inputs.
	ErrEmptyCredential = errors.New("vault: password and salt must be non-empty")

	// ErrInvalidFormat indicates an encrypted blob too short to contain a
	// nonce. Files of 12 bytes or fewer are handled as "empty database"
	// before decryption is attempted, so this only fires on truncated blobs
	// handed directly to Decrypt.
	ErrInvalidFormat = errors.New("vault: encrypted data is malformed")

	// ErrAuthenticationFailed indicates the AEAD tag check failed. A wrong
	// password and a corrupted or tampered file are indistinguishable here;
	// callers must surface this as "incorrect password or corrupted file"
	// and never guess which.
	ErrAuthenticationFailed = errors.New("vault: decryption failed: incorrect password or corrupted file")

	// ErrIoFailure marks disk or permission problems, as opposed to
	// cryptographic failures.
	ErrIoFailure = errors.New("vault: i/o failure")

	// ErrFlushFailed indicates an encryption flush did not complete. The
	// last-good encrypted file is untouched and the working copy is
	// preserved for retry or manual recovery.
	ErrFlushFailed = errors.New("vault: flush failed, working copy preserved")

	// ErrNotOpen is returned by operations that require an open store.
	ErrNotOpen = errors.New("vault: store is not open")

	// ErrAlreadyOpen is returned when Open is called on an open store.
	ErrAlreadyOpen = errors.New("vault: store is already open")
)
