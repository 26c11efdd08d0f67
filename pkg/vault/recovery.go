package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// RecoveryManager detects and re-encrypts a working copy orphaned by a crash
// before its final flush. It runs once at process startup, before the normal
// open sequence; the caller decides whether to recover or discard.
type RecoveryManager struct {
	settings Settings
	logger   *slog.Logger
}

// NewRecoveryManager builds a RecoveryManager over the settings store that
// holds the breadcrumb and salt.
func NewRecoveryManager(settings Settings, logger *slog.Logger) *RecoveryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryManager{settings: settings, logger: logger}
}

// FindRecoveryCandidate returns the breadcrumb path only when the working
// copy it names provably holds data not yet folded into the encrypted file:
// the file exists and its modification time is strictly newer than the
// encrypted file's, or the encrypted file does not exist yet.
func (r *RecoveryManager) FindRecoveryCandidate(encryptedPath string) (string, bool) {
	crumb, ok := r.settings.Get(BreadcrumbKey)
	if !ok || crumb == "" {
		return "", false
	}
	wfi, err := os.Stat(crumb)
	if err != nil {
		return "", false
	}
	efi, err := os.Stat(encryptedPath)
	if err != nil {
		// No encrypted file yet; the working copy is all the data there is.
		return crumb, true
	}
	if wfi.ModTime().After(efi.ModTime()) {
		return crumb, true
	}
	return "", false
}

// RecoverAndEncrypt re-derives the key from the persisted salt and the
// current password, encrypts the candidate working copy over the encrypted
// file with the usual atomic-replace discipline, then deletes the recovered
// working copy and clears the breadcrumb.
func (r *RecoveryManager) RecoverAndEncrypt(workingPath, encryptedPath, password string) error {
	salt, err := loadSalt(r.settings)
	if err != nil {
		return err
	}
	key, err := DeriveKey(password, salt)
	if err != nil {
		return err
	}
	plaintext, err := os.ReadFile(workingPath)
	if err != nil {
		return fmt.Errorf("vault: read recovery candidate: %w", errors.Join(ErrIoFailure, err))
	}
	blob, err := Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	if err := replaceFile(encryptedPath, blob, 0600); err != nil {
		return err
	}
	removeWorkingFiles(workingPath)
	r.settings.Delete(BreadcrumbKey)
	if err := r.settings.Sync(); err != nil {
		return fmt.Errorf("vault: clear breadcrumb: %w", err)
	}
	r.logger.Info("recovered unflushed working copy", "working", workingPath, "encrypted", encryptedPath)
	return nil
}

// Discard deletes an orphaned working copy without folding it back, and
// clears the breadcrumb. Used when the operator declines recovery.
func (r *RecoveryManager) Discard(workingPath string) error {
	removeWorkingFiles(workingPath)
	r.settings.Delete(BreadcrumbKey)
	if err := r.settings.Sync(); err != nil {
		return fmt.Errorf("vault: clear breadcrumb: %w", err)
	}
	return nil
}
