package flock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/projecteru2/rf4watch/lock"
)

const retryDelay = 100 * time.Millisecond

// compile-time interface check.
var _ lock.RWLocker = (*Lock)(nil)

// Lock provides cross-process exclusion between rf4watch instances sharing
// a configuration directory, using flock(2) via gofrs/flock. External tools
// that ignore the lock are still tolerated through file watching.
// Lock files are long-lived and never deleted after use.
type Lock struct {
	fl *flock.Flock
}

// New creates a new Lock for the given path.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Lock acquires an exclusive flock. Blocks until the lock is available
// or the context is cancelled.
func (l *Lock) Lock(ctx context.Context) error {
	locked, err := l.fl.TryLockContext(ctx, retryDelay)
	return result("flock", l.fl.Path(), locked, err)
}

// RLock acquires a shared flock.
func (l *Lock) RLock(ctx context.Context) error {
	locked, err := l.fl.TryRLockContext(ctx, retryDelay)
	return result("shared flock", l.fl.Path(), locked, err)
}

// Unlock releases the flock in either mode.
func (l *Lock) Unlock(_ context.Context) error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release flock %s: %w", l.fl.Path(), err)
	}
	return nil
}

func result(mode, path string, locked bool, err error) error {
	if err != nil {
		return fmt.Errorf("acquire %s %s: %w", mode, path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire %s %s: context done", mode, path)
	}
	return nil
}
