// Package runlock serializes cabletrack invocations that write to the same
// database with an advisory lock file next to it.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Suffix is appended to the database path to name its lock file.
const Suffix = ".lock"

// ErrLocked is returned when another invocation holds the lock.
var ErrLocked = errors.New("database is locked by another cabletrack run")

// Lock is a held run lock.
type Lock struct {
	f *flock.Flock
}

// Path returns the lock file guarding the database at dbPath.
func Path(dbPath string) string {
	return dbPath + Suffix
}

// TryAcquire takes the lock for dbPath without waiting.
func TryAcquire(dbPath string) (*Lock, error) {
	f := flock.New(Path(dbPath))
	ok, err := f.TryLock()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", f.Path(), err)
	}
	if !ok {
		_ = f.Close()
		return nil, ErrLocked
	}
	return &Lock{f: f}, nil
}

// Acquire waits for the lock for dbPath, polling every retry, until ctx is
// done.
func Acquire(ctx context.Context, dbPath string, retry time.Duration) (*Lock, error) {
	f := flock.New(Path(dbPath))
	ok, err := f.TryLockContext(ctx, retry)
	if err != nil || !ok {
		_ = f.Close()
		if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", f.Path(), err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
