package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the lock file created inside a locked directory.
const LockFileName = ".frontdesk.lock"

// ErrLocked is returned when another process already holds the directory lock.
var ErrLocked = errors.New("data directory is locked by another process")

// DirLock is an exclusive advisory lock on a data directory. Only one process
// may own a data directory at a time.
type DirLock struct {
	fl *flock.Flock
}

// LockDir takes the exclusive lock for dir without blocking. It returns
// ErrLocked if another process holds it.
func LockDir(dir string) (*DirLock, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(dir, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", dir, ErrLocked)
	}
	return &DirLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.fl.Path()
}

// Unlock releases the lock. It is safe to call on a nil lock and more than once.
func (l *DirLock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
