package lock

import (
	"context"
	"sync"
)

// MemoryLocker is an in-process Locker used in tests and single-node setups.
type MemoryLocker struct {
	mu     sync.Mutex
	scopes map[string]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{scopes: make(map[string]*sync.Mutex)}
}

func (m *MemoryLocker) Acquire(ctx context.Context, scope string) (*Lock, error) {
	m.mu.Lock()
	scoped, ok := m.scopes[scope]
	if !ok {
		scoped = &sync.Mutex{}
		m.scopes[scope] = scoped
	}
	m.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		scoped.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine still holds or will hold the mutex; hand it back once taken.
		go func() {
			<-acquired
			scoped.Unlock()
		}()
		return nil, ctx.Err()
	}

	return &Lock{
		Scope: scope,
		release: func(context.Context) error {
			scoped.Unlock()
			return nil
		},
	}, nil
}

func (m *MemoryLocker) Release(ctx context.Context, l *Lock) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx)
}
