// Package backend defines the coordination-service surface the sequence
// generator runs on: a durable store of versioned cells addressed by path,
// plus one distributed try-lock per path.
//
// Implementations must be safe for concurrent use and must advance a cell's
// version on every successful write, Store and ForceStore alike, so that a
// compare-and-set racing any other writer observes the change and loses.
package backend

import (
	"context"
	"errors"
	"net"
)

// Cell is a point-in-time read of a path.
type Cell struct {
	Value   []byte
	Version int64 // > 0 when the path exists
	Exists  bool
}

// Conn is one session with the coordination service.
type Conn interface {
	// Load returns the cell at path. A missing path is not an error: it
	// reads as Exists=false with Version 0.
	Load(ctx context.Context, path string) (Cell, error)

	// Store writes value only if the path's current version equals version.
	// Version 0 means the path must not exist yet (create-if-absent).
	// Losing the race is not an error: it returns ok=false.
	Store(ctx context.Context, path string, value []byte, version int64) (ok bool, err error)

	// ForceStore overwrites the cell unconditionally, creating it when
	// absent. The version still advances so concurrent Stores still lose.
	ForceStore(ctx context.Context, path string, value []byte) error

	// Locker returns a fresh handle on the distributed lock at path. A
	// handle serves one acquire/release cycle and is not itself safe for
	// concurrent use; take a new one per acquisition.
	Locker(path string) Mutex

	// Close ends the session. Idempotent. Later operations fail with
	// ErrClosed.
	Close(ctx context.Context) error
}

// Mutex is a single-acquisition handle on a distributed lock.
type Mutex interface {
	// TryAcquire makes one attempt to take the lock. A lock held elsewhere
	// yields (false, nil); callers bring their own retry policy.
	TryAcquire(ctx context.Context) (bool, error)

	// Release gives the lock back. Releasing a lock this handle does not
	// hold is an error.
	Release(ctx context.Context) error
}

var (
	// ErrClosed is reported by operations on a closed Conn.
	ErrClosed = errors.New("backend: connection closed")

	// ErrNotHeld is reported by Release on a handle that never acquired.
	ErrNotHeld = errors.New("backend: lock not held")

	// ErrTryAgain marks a transient fault worth one more attempt.
	// Implementations wrap it around timeouts, leader changes and other
	// conditions that tend to clear on their own.
	ErrTryAgain = errors.New("backend: try again")
)

// Retryable reports whether err is worth retrying under a policy: an
// explicit ErrTryAgain wrap or a network timeout.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTryAgain) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
