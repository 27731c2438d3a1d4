package lock

import "context"

// Lock is a handle to an acquired exclusive lock.
type Lock struct {
	Scope string

	release func(ctx context.Context) error
}

// Locker serializes writers that share a scope (one scope per principal).
// Acquire blocks until the lock is held or ctx is done. Release must be
// called on every exit path of the critical section.
type Locker interface {
	Acquire(ctx context.Context, scope string) (*Lock, error)
	Release(ctx context.Context, l *Lock) error
}
