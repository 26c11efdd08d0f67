package vault

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// connPragmas configure the working copy for speed over durability. The
// encrypted file is the durability boundary, not the working copy, so the
// working copy runs WAL with relaxed synchronous mode and in-memory temp
// storage.
var connPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA busy_timeout = 5000",
}

// WorkingCopy owns the plaintext temporary database file and the live
// connection handed to the query layer. The connection is bound to the
// goroutine that opened it for commit purposes; other goroutines may read or
// enqueue flush requests but never commit.
type WorkingCopy struct {
	path   string
	db     *sql.DB
	owner  uint64
	logger *slog.Logger

	mu      sync.Mutex
	batchTx *sql.Tx
}

// CreateWorkingFile allocates a uniquely named temp file under dir (the
// system temp directory when dir is empty) and closes the OS handle
// immediately: SQLite expects to open the path itself, not an inherited
// handle.
func CreateWorkingFile(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("vault: create working directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("estimate-%s.db", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("vault: create working copy: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("vault: close working copy handle: %w", err)
	}
	return path, nil
}

// Connect opens the engine connection to the working copy and applies the
// session pragmas. The calling goroutine becomes the connection owner.
func Connect(ctx context.Context, path string, logger *slog.Logger) (*WorkingCopy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vault: open working copy: %w", err)
	}
	// A single connection keeps every statement on the owner's session and
	// makes the commit-ownership rule meaningful.
	db.SetMaxOpenConns(1)
	for _, pragma := range connPragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("vault: %s: %w", pragma, err)
		}
	}
	return &WorkingCopy{path: path, db: db, owner: goroutineID(), logger: logger}, nil
}

// Path returns the working copy's file path.
func (w *WorkingCopy) Path() string { return w.path }

// DB returns the live connection for the query layer.
func (w *WorkingCopy) DB() *sql.DB { return w.db }

// BeginBatch starts a transaction for the query layer's grouped writes. The
// transaction is tracked so a flush cycle can commit it via CommitIfOwner.
// Only one batch transaction may be open at a time.
func (w *WorkingCopy) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.batchTx != nil {
		return nil, fmt.Errorf("vault: batch transaction already open")
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: begin batch: %w", err)
	}
	w.batchTx = tx
	return tx, nil
}

// CommitIfOwner commits the tracked batch transaction when called on the
// goroutine that opened the connection. On any other goroutine it reports
// success without committing: that goroutine's writes, if any, belong to a
// different transaction, and committing here would be wrong.
func (w *WorkingCopy) CommitIfOwner() error {
	if goroutineID() != w.owner {
		w.logger.Debug("skipping commit from non-owner goroutine")
		return nil
	}
	w.mu.Lock()
	tx := w.batchTx
	w.batchTx = nil
	w.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault: commit batch: %w", err)
	}
	return nil
}

// CheckpointWAL folds the write-ahead log into the main database file so a
// raw byte read of the working copy reflects all committed writes. It opens
// its own short-lived connection and is safe to call from any goroutine.
func (w *WorkingCopy) CheckpointWAL(ctx context.Context) error {
	aux, err := sql.Open("sqlite", w.path)
	if err != nil {
		return fmt.Errorf("vault: open checkpoint connection: %w", err)
	}
	defer aux.Close()
	if _, err := aux.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("vault: wal checkpoint: %w", err)
	}
	return nil
}

// Snapshot writes a consistent point-in-time copy of the working copy via
// VACUUM INTO on a short-lived connection and returns its path. The caller
// removes the file. On failure, callers fall back to reading the live file.
func (w *WorkingCopy) Snapshot(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	dest := filepath.Join(dir, fmt.Sprintf("estimate-snapshot-%s.db", uuid.NewString()))
	aux, err := sql.Open("sqlite", w.path)
	if err != nil {
		return "", fmt.Errorf("vault: open snapshot connection: %w", err)
	}
	defer aux.Close()
	if _, err := aux.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("vault: vacuum into snapshot: %w", err)
	}
	return dest, nil
}

// Close closes the live connection, rolling back any open batch transaction.
// It does not delete the file; Remove does that after a successful terminal
// encrypt.
func (w *WorkingCopy) Close() error {
	w.mu.Lock()
	if w.batchTx != nil {
		w.batchTx.Rollback()
		w.batchTx = nil
	}
	w.mu.Unlock()
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("vault: close working copy: %w", err)
	}
	return nil
}

// Remove deletes the working copy and its WAL siblings.
func (w *WorkingCopy) Remove() {
	removeWorkingFiles(w.path)
}

func removeWorkingFiles(path string) {
	os.Remove(path)
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
}

// goroutineID parses the numeric goroutine id from the runtime stack header.
// Captured once at connect time as the explicit owner token the
// commit-ownership rule compares against.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}
