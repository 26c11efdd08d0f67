package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectTestCopy(t *testing.T) *WorkingCopy {
	t.Helper()
	path, err := CreateWorkingFile(t.TempDir())
	require.NoError(t, err)
	working, err := Connect(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { working.Close() })
	return working
}

func TestCreateWorkingFile_UniqueAndPrivate(t *testing.T) {
	dir := t.TempDir()
	a, err := CreateWorkingFile(dir)
	require.NoError(t, err)
	b, err := CreateWorkingFile(dir)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(filepath.Base(a), "estimate-"))

	fi, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestCreateWorkingFile_MakesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "work")
	path, err := CreateWorkingFile(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestBeginBatch_SingleOpenTransaction(t *testing.T) {
	ctx := context.Background()
	working := connectTestCopy(t)

	_, err := working.BeginBatch(ctx)
	require.NoError(t, err)

	_, err = working.BeginBatch(ctx)
	assert.Error(t, err)

	// Committing the tracked batch frees the slot for the next one.
	require.NoError(t, working.CommitIfOwner())
	_, err = working.BeginBatch(ctx)
	assert.NoError(t, err)
}

func TestCommitIfOwner_CommitsOnOwnerGoroutine(t *testing.T) {
	ctx := context.Background()
	working := connectTestCopy(t)

	_, err := working.DB().ExecContext(ctx, `CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)

	tx, err := working.BeginBatch(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO t (v) VALUES ('batched')`)
	require.NoError(t, err)

	// The test goroutine opened the connection, so the commit applies.
	require.NoError(t, working.CommitIfOwner())

	var n int
	require.NoError(t, working.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestCommitIfOwner_NoOpOnOtherGoroutine(t *testing.T) {
	ctx := context.Background()
	working := connectTestCopy(t)

	_, err := working.DB().ExecContext(ctx, `CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)

	tx, err := working.BeginBatch(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO t (v) VALUES ('batched')`)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- working.CommitIfOwner() }()
	require.NoError(t, <-done)

	// The batch is still open and owned; the owner can commit it after.
	require.NoError(t, working.CommitIfOwner())
	var n int
	require.NoError(t, working.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSnapshot_ConsistentCopy(t *testing.T) {
	ctx := context.Background()
	working := connectTestCopy(t)

	_, err := working.DB().ExecContext(ctx, `CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)
	_, err = working.DB().ExecContext(ctx, `INSERT INTO t (v) VALUES ('row')`)
	require.NoError(t, err)

	snap, err := working.Snapshot(ctx, t.TempDir())
	require.NoError(t, err)
	defer os.Remove(snap)

	aux, err := Connect(ctx, snap, nil)
	require.NoError(t, err)
	defer aux.Close()

	var v string
	require.NoError(t, aux.DB().QueryRowContext(ctx, `SELECT v FROM t`).Scan(&v))
	assert.Equal(t, "row", v)
}

func TestCheckpointWAL_FoldsLogIntoMainFile(t *testing.T) {
	ctx := context.Background()
	working := connectTestCopy(t)

	_, err := working.DB().ExecContext(ctx, `CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)
	_, err = working.DB().ExecContext(ctx, `INSERT INTO t (v) VALUES ('row')`)
	require.NoError(t, err)

	require.NoError(t, working.CheckpointWAL(ctx))

	fi, err := os.Stat(working.Path())
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestRemove_DeletesSidecars(t *testing.T) {
	path, err := CreateWorkingFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0600))
	require.NoError(t, os.WriteFile(path+"-shm", []byte("shm"), 0600))

	working, err := Connect(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, working.Close())
	working.Remove()

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_, err := os.Stat(p)
		assert.ErrorIs(t, err, os.ErrNotExist)
	}
}

func TestGoroutineID_StableWithinGoroutine(t *testing.T) {
	assert.Equal(t, goroutineID(), goroutineID())
	assert.NotZero(t, goroutineID())

	other := make(chan uint64, 1)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, goroutineID(), <-other)
}
