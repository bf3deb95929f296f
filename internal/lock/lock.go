// Package lock serializes searchapi processes working on the same data
// directory.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

// FileName is the lock file created in the data directory.
const FileName = "searchapi.lock"

// retryInterval is how often a contended lock is retried.
const retryInterval = 100 * time.Millisecond

// FileLock is a cross-process lock on a data directory. The tracker
// database tolerates concurrent access, but file-backed search indexes
// allow a single writer only.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for the data directory dir.
func New(dir string) *FileLock {
	path := filepath.Join(dir, FileName)
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock acquires the lock, waiting at most timeout. A zero timeout fails
// immediately when another process holds the lock.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.StorageError("failed to create lock directory", err)
	}

	var acquired bool
	var err error
	if timeout <= 0 {
		acquired, err = l.flock.TryLock()
	} else {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		acquired, err = l.flock.TryLockContext(ctx, retryInterval)
		if err != nil && ctx.Err() != nil {
			err = nil
		}
	}
	if err != nil {
		return errors.StorageError("failed to acquire lock", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeStorageBusy,
			fmt.Sprintf("data directory %s is in use by another searchapi process", filepath.Dir(l.path)), nil).
			WithDetail("lock_file", l.path).
			WithSuggestion("Wait for the other process to finish, or stop 'searchapi watch'")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return errors.StorageError("failed to release lock", err)
	}
	return nil
}

// Path returns the path of the lock file.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
