package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// closeWaitTimeout bounds how long Close waits for an in-flight background
// flush before proceeding with its own final flush.
const closeWaitTimeout = 30 * time.Second

// OpenStatus reports how Open concluded.
type OpenStatus int

const (
	// OpenSuccess means a known-good encrypted file was decrypted.
	OpenSuccess OpenStatus = iota + 1
	// OpenFirstRun means no encrypted data existed yet; the store proceeds
	// with an empty working copy.
	OpenFirstRun
)

// String returns the status name for logs.
func (s OpenStatus) String() string {
	switch s {
	case OpenSuccess:
		return "success"
	case OpenFirstRun:
		return "first-run"
	default:
		return "unknown"
	}
}

// Schema initializes or migrates the application tables on a freshly
// connected working copy. The schema layer owns its DDL; it must call back
// into RequestFlush after mutations it wants persisted.
type Schema interface {
	Init(ctx context.Context, db *sql.DB) error
}

// Options configure a StoreManager.
type Options struct {
	// Settings is the key-value store holding the salt and breadcrumb.
	// Required.
	Settings Settings
	// Schema, when set, is initialized after the working copy connects.
	Schema Schema
	// WorkDir is where working copies and snapshots live. System temp
	// directory when empty.
	WorkDir string
	// DebounceWindow for background flushes. DefaultDebounceWindow when zero.
	DebounceWindow time.Duration
	Logger         *slog.Logger

	// OnFlushQueued and OnFlushDone are optional UI feedback hooks with a
	// best-effort status string. Absence is not an error.
	OnFlushQueued func(status string)
	OnFlushDone   func(status string)
}

// StoreManager composes key derivation, the AEAD codec, the working copy,
// the flush coordinator and recovery into the open/close/request-flush/
// re-key surface consumed by the data-access layer.
type StoreManager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	key      []byte
	password string

	encryptedPath string
	working       *WorkingCopy
	flusher       *FlushCoordinator
}

// NewStoreManager validates options and returns an unopened manager.
func NewStoreManager(opts Options) (*StoreManager, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("vault: settings store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	return &StoreManager{opts: opts, logger: opts.Logger}, nil
}

// Open derives the key, decrypts the encrypted file into a fresh working
// copy, connects it and initializes the schema. Outcomes: (OpenSuccess, nil)
// for a known-good file, (OpenFirstRun, nil) for a missing or degenerate
// (<= 12 bytes) file, or an error for a wrong password, corrupted file, or
// I/O failure. On error, startup aborts entirely and any temp artifacts are
// left in place for inspection.
func (m *StoreManager) Open(ctx context.Context, encryptedPath, password string) (OpenStatus, error) {
	if m.working != nil {
		return 0, ErrAlreadyOpen
	}
	salt, err := loadOrCreateSalt(m.opts.Settings)
	if err != nil {
		return 0, err
	}
	key, err := DeriveKey(password, salt)
	if err != nil {
		return 0, err
	}

	status := OpenFirstRun
	var plaintext []byte
	blob, err := os.ReadFile(encryptedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: nothing on disk yet.
	case err != nil:
		return 0, fmt.Errorf("vault: read encrypted file: %w", errors.Join(ErrIoFailure, err))
	case len(blob) <= NonceSize:
		// Degenerate file means "no data yet", never corruption.
	default:
		if plaintext, err = Decrypt(key, blob); err != nil {
			return 0, err
		}
		status = OpenSuccess
	}

	workPath, err := CreateWorkingFile(m.opts.WorkDir)
	if err != nil {
		return 0, err
	}
	if len(plaintext) > 0 {
		if err := os.WriteFile(workPath, plaintext, 0600); err != nil {
			return 0, fmt.Errorf("vault: write working copy: %w", errors.Join(ErrIoFailure, err))
		}
	}

	// Record the breadcrumb before handing out the connection so a crash
	// from here on is recoverable.
	m.opts.Settings.Set(BreadcrumbKey, workPath)
	if err := m.opts.Settings.Sync(); err != nil {
		return 0, fmt.Errorf("vault: persist breadcrumb: %w", err)
	}

	working, err := Connect(ctx, workPath, m.logger)
	if err != nil {
		return 0, err
	}
	if m.opts.Schema != nil {
		if err := m.opts.Schema.Init(ctx, working.DB()); err != nil {
			working.Close()
			return 0, fmt.Errorf("vault: initialize schema: %w", err)
		}
	}

	m.mu.Lock()
	m.key = key
	m.password = password
	m.mu.Unlock()

	m.encryptedPath = encryptedPath
	m.working = working
	m.flusher = NewFlushCoordinator(working, encryptedPath, m.currentKey, m.logger)
	m.flusher.OnQueued = m.opts.OnFlushQueued
	m.flusher.OnDone = m.opts.OnFlushDone

	m.logger.Info("store opened", "status", status, "encrypted", encryptedPath, "working", workPath)
	return status, nil
}

// DB returns the live connection for the query layer, or nil before Open.
func (m *StoreManager) DB() *sql.DB {
	if m.working == nil {
		return nil
	}
	return m.working.DB()
}

// Working exposes the working copy for callers that need checkpoint or
// snapshot access. Nil before Open.
func (m *StoreManager) Working() *WorkingCopy { return m.working }

// RequestFlush schedules a debounced background flush of the working copy
// into the encrypted file. Never blocks; rapid calls coalesce.
func (m *StoreManager) RequestFlush() {
	if m.flusher == nil {
		return
	}
	m.flusher.RequestFlush(m.opts.DebounceWindow)
}

// ReKey re-encrypts the store under a key derived from newPassword and the
// same salt. The key swap happens only once the flush coordinator's exclusive
// slot is held, so an in-flight background cycle always completes under the
// old key and can never install the file under the new one. If the flush
// under the new key fails, the old key and password are restored before the
// slot is released; the on-disk file remains decryptable with the old
// password and the store is never left half-migrated.
func (m *StoreManager) ReKey(ctx context.Context, newPassword string) error {
	if m.working == nil {
		return ErrNotOpen
	}
	salt, err := loadSalt(m.opts.Settings)
	if err != nil {
		return err
	}
	newKey, err := DeriveKey(newPassword, salt)
	if err != nil {
		return err
	}

	var oldKey []byte
	var oldPassword string
	swap := func() {
		m.mu.Lock()
		oldKey, oldPassword = m.key, m.password
		m.key, m.password = newKey, newPassword
		m.mu.Unlock()
	}
	restore := func() {
		m.mu.Lock()
		m.key, m.password = oldKey, oldPassword
		m.mu.Unlock()
	}
	if err := m.flusher.flushExclusive(ctx, swap, restore); err != nil {
		return fmt.Errorf("vault: re-key: %w", err)
	}
	m.logger.Info("store re-keyed", "encrypted", m.encryptedPath)
	return nil
}

// Close cancels any pending debounce, waits (bounded) for an in-flight
// flush, performs one final synchronous flush, and only then deletes the
// working copy and clears the breadcrumb. If the final flush fails, both are
// deliberately preserved: the working copy holds the only up-to-date data,
// and callers must surface the failure as critical.
func (m *StoreManager) Close(ctx context.Context) error {
	if m.working == nil {
		return ErrNotOpen
	}
	m.flusher.CancelPending()
	if !m.flusher.WaitIdle(closeWaitTimeout) {
		m.logger.Warn("in-flight flush did not finish in time")
	}
	flushErr := m.flusher.FlushNow(ctx)

	closeErr := m.working.Close()
	if flushErr == nil {
		m.working.Remove()
		m.opts.Settings.Delete(BreadcrumbKey)
		if err := m.opts.Settings.Sync(); err != nil {
			m.logger.Warn("failed to clear breadcrumb", "error", err)
		}
	} else {
		m.logger.Error("final flush failed, preserving working copy",
			"working", m.working.Path(), "error", flushErr)
	}

	m.working = nil
	m.flusher = nil
	m.mu.Lock()
	m.key = nil
	m.password = ""
	m.mu.Unlock()

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (m *StoreManager) currentKey() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key
}
