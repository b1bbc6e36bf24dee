// Package lock provides the mutual-exclusion gate that serializes
// every ledger transaction. Exactly one holder at a time, across
// processes when the file-backed gate is used.
package lock

import (
	"context"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrTimeout means the gate could not be acquired within the bounded
// wait. Callers should treat it as retryable.
var ErrTimeout = errors.New("lock acquisition timed out")

// Gate guards the ledger's read-modify-write cycle. Acquire blocks
// until the gate is held or timeout elapses; the returned release
// function must be called on every exit path.
type Gate interface {
	Acquire(ctx context.Context, timeout time.Duration) (release func(), err error)
}

// FileGate is an OS advisory lock on a sibling lock file. It excludes
// other processes sharing the ledger as well as other goroutines in
// this one.
type FileGate struct {
	path  string
	retry time.Duration
}

func NewFileGate(path string) *FileGate {
	return &FileGate{path: path, retry: 25 * time.Millisecond}
}

func (g *FileGate) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(g.path)
	ok, err := fl.TryLockContext(ctx, g.retry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, errors.Wrapf(err, "locking %s", g.path)
	}
	if !ok {
		return nil, ErrTimeout
	}
	return func() { _ = fl.Unlock() }, nil
}

// MutexGate is an in-process gate for single-process deployments and
// tests. A buffered channel rather than sync.Mutex so acquisition can
// honor the bounded wait.
type MutexGate struct {
	sem chan struct{}
}

func NewMutexGate() *MutexGate {
	return &MutexGate{sem: make(chan struct{}, 1)}
}

func (g *MutexGate) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, nil
	case <-t.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}
