package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RebuildLock provides cross-process file locking for index rebuilds so two
// processes sharing one index directory never write the HNSW snapshot or the
// metadata database at the same time.
// Works on all platforms (Unix, Linux, macOS, Windows).
type RebuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRebuildLock creates a rebuild lock for the given index directory.
// The lock file lives at <dir>/.rebuild.lock
func NewRebuildLock(dir string) *RebuildLock {
	lockPath := filepath.Join(dir, ".rebuild.lock")
	return &RebuildLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires an exclusive lock, blocking until it is available.
// The lock file is created if it does not exist.
func (l *RebuildLock) Lock() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}

	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (l *RebuildLock) TryLock() (bool, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked RebuildLock.
func (l *RebuildLock) Unlock() error {
	if !l.locked {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release rebuild lock: %w", err)
	}

	l.locked = false
	return nil
}

// Path returns the path to the lock file.
func (l *RebuildLock) Path() string {
	return l.path
}

// IsLocked reports whether this process currently holds the lock.
func (l *RebuildLock) IsLocked() bool {
	return l.locked
}
