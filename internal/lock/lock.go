package lock

import (
	"context"
	"time"
)

// Keyed serializes capacity-affecting operations per ticket type. Acquire
// blocks until the lock for key is held, the wait bound elapses
// (domain.ErrLockTimeout), or ctx is done. The returned function releases the
// lock and is safe to call exactly once.
//
// Lock scope is exactly one key: operations on different ticket types never
// block each other.
type Keyed interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DefaultWait bounds how long an acquirer waits before reporting a retryable
// timeout. A stalled holder must not wedge the checkout path.
const DefaultWait = 3 * time.Second
