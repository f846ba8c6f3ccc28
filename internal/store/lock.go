package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
)

// DirLock gives one process exclusive ownership of a durable index directory.
// The lock file sits next to the directory as <path>.lock so the index
// directory itself only ever contains engine files.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates an unlocked lock for the index at indexPath.
func NewDirLock(indexPath string) *DirLock {
	lockPath := filepath.Clean(indexPath) + ".lock"
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it is held elsewhere.
func (l *DirLock) TryLock() (bool, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *DirLock) Path() string {
	return l.path
}

// IsLocked reports whether this DirLock holds the lock.
func (l *DirLock) IsLocked() bool {
	return l.locked
}

// acquireLock takes the directory lock for indexPath or fails with
// ErrCodeIndexLocked when another handle owns it.
func acquireLock(indexPath string) (*DirLock, error) {
	lock := NewDirLock(indexPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexOpen, err, "lock index at %s", indexPath)
	}
	if !acquired {
		return nil, rserrors.Newf(rserrors.ErrCodeIndexLocked, "index at %s is already open", indexPath).
			WithDetail("lock", lock.Path()).
			WithSuggestion("close the other handle or process using this index")
	}
	return lock, nil
}
