package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	_, ok := f.Get("anything")
	assert.False(t, ok)
}

func TestSyncAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")

	f, err := Open(path)
	require.NoError(t, err)
	f.Set("security/db_salt", "c2FsdA==")
	f.Set("ui/theme", "dark")
	require.NoError(t, f.Sync())

	g, err := Open(path)
	require.NoError(t, err)
	v, ok := g.Get("security/db_salt")
	require.True(t, ok)
	assert.Equal(t, "c2FsdA==", v)
	v, ok = g.Get("ui/theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestDelete_PersistsAcrossSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	f, err := Open(path)
	require.NoError(t, err)
	f.Set("security/last_temp_db_path", "/tmp/estimate-x.db")
	require.NoError(t, f.Sync())

	f.Delete("security/last_temp_db_path")
	require.NoError(t, f.Sync())

	g, err := Open(path)
	require.NoError(t, err)
	_, ok := g.Get("security/last_temp_db_path")
	assert.False(t, ok)
}

func TestSync_OwnerOnlyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	f, err := Open(path)
	require.NoError(t, err)
	f.Set("k", "v")
	require.NoError(t, f.Sync())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSync_FailureLeavesPriorFileIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	f, err := Open(path)
	require.NoError(t, err)
	f.Set("k", "v1")
	require.NoError(t, f.Sync())

	// A directory squatting on the temp path fails the write before the
	// rename; the previous file must be untouched.
	require.NoError(t, os.Mkdir(path+".tmp", 0700))
	f.Set("k", "v2")
	require.Error(t, f.Sync())

	g, err := Open(path)
	require.NoError(t, err)
	v, ok := g.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestOpen_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestDefaultPath_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/silverestimate/settings.yaml", DefaultPath())
}
