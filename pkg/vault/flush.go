package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDebounceWindow is how long the coordinator waits after the last
// flush request before starting a background encryption cycle.
const DefaultDebounceWindow = 2 * time.Second

type flushState int

const (
	flushIdle flushState = iota
	flushPending
	flushRunning
)

// FlushCoordinator debounces flush requests and serializes background
// encryption of the working copy back to the encrypted file.
//
// State machine: Idle -> Pending -> Running -> Idle, with Running -> Pending
// when a request arrives during a running cycle. At most one cycle runs at a
// time, so the encrypted file is always the product of a single coherent
// snapshot.
type FlushCoordinator struct {
	working       *WorkingCopy
	encryptedPath string
	keyFn         func() []byte
	logger        *slog.Logger

	// encrypt defaults to Encrypt; swappable so tests can inject failures.
	encrypt func(key, plaintext []byte) ([]byte, error)

	// OnQueued and OnDone are optional UI feedback hooks carrying a
	// best-effort status string. Set them before the first RequestFlush.
	OnQueued func(status string)
	OnDone   func(status string)

	mu     sync.Mutex
	state  flushState
	rearm  bool
	window time.Duration
	timer  *time.Timer
	idle   chan struct{} // non-nil while not idle; closed on return to idle
}

// NewFlushCoordinator builds a coordinator for the given working copy and
// encrypted file. keyFn returns the current encryption key; it is consulted
// at the start of every cycle so a re-key takes effect immediately.
func NewFlushCoordinator(working *WorkingCopy, encryptedPath string, keyFn func() []byte, logger *slog.Logger) *FlushCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushCoordinator{
		working:       working,
		encryptedPath: encryptedPath,
		keyFn:         keyFn,
		logger:        logger,
		encrypt:       Encrypt,
	}
}

// RequestFlush schedules a background flush after window, coalescing with
// any pending request. A request during a running cycle re-arms exactly one
// follow-up cycle instead of stacking concurrent encryptions. Never blocks.
func (fc *FlushCoordinator) RequestFlush(window time.Duration) {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	fc.mu.Lock()
	switch fc.state {
	case flushRunning:
		fc.rearm = true
		fc.window = window
	case flushPending:
		fc.window = window
		fc.timer.Reset(window)
	default:
		fc.state = flushPending
		fc.window = window
		fc.idle = make(chan struct{})
		fc.timer = time.AfterFunc(window, fc.fire)
	}
	fc.mu.Unlock()
	fc.notify(fc.OnQueued, "flush queued")
}

// CancelPending stops a debounced flush that has not started and clears any
// re-arm. A running cycle is not cancelled.
func (fc *FlushCoordinator) CancelPending() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.rearm = false
	if fc.state == flushPending {
		fc.timer.Stop()
		fc.state = flushIdle
		close(fc.idle)
		fc.idle = nil
	}
}

// WaitIdle blocks until the coordinator is idle or the timeout elapses.
// Reports whether idleness was reached.
func (fc *FlushCoordinator) WaitIdle(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		fc.mu.Lock()
		if fc.state == flushIdle {
			fc.mu.Unlock()
			return true
		}
		ch := fc.idle
		fc.mu.Unlock()
		select {
		case <-ch:
		case <-deadline.C:
			return false
		}
	}
}

// FlushNow performs one synchronous flush cycle, first waiting for any
// in-flight cycle to finish (bounded by ctx). Used by Close.
func (fc *FlushCoordinator) FlushNow(ctx context.Context) error {
	return fc.flushExclusive(ctx, nil, nil)
}

// flushExclusive acquires the exclusive Running slot, invokes prepare while
// no other cycle can observe state, then performs one synchronous cycle. On
// cycle failure, rollback runs before the slot is released, so a re-armed
// follow-up cycle never sees the prepared state after a failure. Re-key uses
// the pair to swap and restore the encryption key.
func (fc *FlushCoordinator) flushExclusive(ctx context.Context, prepare, rollback func()) error {
	for {
		fc.mu.Lock()
		if fc.state == flushIdle {
			fc.state = flushRunning
			fc.idle = make(chan struct{})
			fc.mu.Unlock()
			break
		}
		if fc.state == flushPending {
			// Take over the pending slot; the debounce wait is moot now.
			fc.timer.Stop()
			fc.state = flushRunning
			fc.mu.Unlock()
			break
		}
		ch := fc.idle
		fc.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("vault: waiting for in-flight flush: %w", ctx.Err())
		}
	}
	if prepare != nil {
		prepare()
	}
	err := fc.runCycle(ctx)
	if err != nil && rollback != nil {
		rollback()
	}
	fc.finish(err)
	if err != nil {
		return errors.Join(ErrFlushFailed, err)
	}
	return nil
}

// fire runs when the debounce timer elapses.
func (fc *FlushCoordinator) fire() {
	fc.mu.Lock()
	if fc.state != flushPending {
		// Lost a race with CancelPending or FlushNow.
		fc.mu.Unlock()
		return
	}
	fc.state = flushRunning
	fc.mu.Unlock()

	fc.finish(fc.runCycle(context.Background()))
}

// finish returns the coordinator to Idle, or re-arms a Pending cycle when a
// request arrived while running, and emits the done notification.
func (fc *FlushCoordinator) finish(err error) {
	status := "flush done"
	if err != nil {
		status = "flush failed, working copy preserved"
		fc.logger.Error("flush failed", "path", fc.encryptedPath, "error", err)
	}
	fc.mu.Lock()
	if fc.rearm {
		fc.rearm = false
		fc.state = flushPending
		fc.timer = time.AfterFunc(fc.window, fc.fire)
	} else {
		fc.state = flushIdle
		close(fc.idle)
		fc.idle = nil
	}
	fc.mu.Unlock()
	fc.notify(fc.OnDone, status)
}

// runCycle commits pending writes, checkpoints, snapshots, encrypts and
// atomically replaces the encrypted file. Checkpoint and snapshot are best
// effort: their failure degrades consistency of the byte image slightly but
// never loses committed data, so the cycle proceeds on the live file.
func (fc *FlushCoordinator) runCycle(ctx context.Context) error {
	if err := fc.working.CommitIfOwner(); err != nil {
		return err
	}
	if err := fc.working.CheckpointWAL(ctx); err != nil {
		fc.logger.Warn("wal checkpoint failed, encrypting live file anyway", "error", err)
	}
	source := fc.working.Path()
	snapshot, err := fc.working.Snapshot(ctx, filepath.Dir(source))
	if err != nil {
		fc.logger.Warn("snapshot failed, falling back to live file", "error", err)
	} else {
		source = snapshot
		defer os.Remove(snapshot)
	}
	plaintext, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("vault: read working copy: %w", err)
	}
	blob, err := fc.encrypt(fc.keyFn(), plaintext)
	if err != nil {
		return fmt.Errorf("vault: encrypt working copy: %w", err)
	}
	return replaceFile(fc.encryptedPath, blob, 0600)
}

func (fc *FlushCoordinator) notify(hook func(string), status string) {
	if hook != nil {
		hook(status)
	}
}
