package dense

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// IndexLock is a cross-process guard over a store directory, so a CLI
// reindex and a running server cannot write the same store at once.
type IndexLock struct {
	path  string
	flock *flock.Flock
}

// NewIndexLock creates a lock handle for the store directory. The lock
// file lives at <dir>/.lock.
func NewIndexLock(dir string) *IndexLock {
	path := filepath.Join(dir, LockFile)
	return &IndexLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. A held lock fails with an
// index-locked error so callers can surface contention instead of
// queueing writes.
func (l *IndexLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "create lock directory", err)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexLocked, "acquire index lock", err).WithDetail("path", l.path)
	}
	if !ok {
		return terrors.New(terrors.ErrCodeIndexLocked, "index is locked by another process", nil).
			WithDetail("path", l.path).
			WithSuggestion("wait for the running reindex to finish")
	}
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *IndexLock) Release() error {
	return l.flock.Unlock()
}

// Locked reports whether this handle currently holds the lock.
func (l *IndexLock) Locked() bool {
	return l.flock.Locked()
}
