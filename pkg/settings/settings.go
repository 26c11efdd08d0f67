// Package settings provides the file-backed key-value settings store used
// to persist the key-derivation salt and the crash-recovery breadcrumb.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is a YAML-file-backed settings store. Safe for concurrent use.
// Mutations are in-memory until Sync persists them atomically.
type File struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads the settings file at path, starting empty when the file does
// not exist yet.
func Open(path string) (*File, error) {
	f := &File{path: path, values: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return f, nil
}

// Get returns the value for key and whether it was present.
func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// Set stores a value for key in memory.
func (f *File) Set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

// Delete removes key from memory.
func (f *File) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
}

// Sync writes the settings to disk atomically with owner-only permissions.
func (f *File) Sync() error {
	f.mu.Lock()
	data, err := yaml.Marshal(f.values)
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}
	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("settings: create %s: %w", tmp, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("settings: write %s: %w", tmp, err)
	}
	// The salt and breadcrumb must be on disk before the caller proceeds, so
	// sync before the rename makes it visible.
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("settings: sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("settings: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("settings: rename %s: %w", tmp, err)
	}
	return nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// DefaultPath returns the default settings path following the XDG spec.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "silverestimate", "settings.yaml")
}
