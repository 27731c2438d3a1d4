package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		locker := NewMemoryLocker()

		held, err := locker.Acquire(context.Background(), "alice")
		require.NoError(t, err)
		require.NotNil(t, held)
		assert.Equal(t, "alice", held.Scope)
		require.NoError(t, locker.Release(context.Background(), held))
	})

	t.Run("second acquire blocks until the first release", func(t *testing.T) {
		locker := NewMemoryLocker()

		first, err := locker.Acquire(context.Background(), "alice")
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			second, err := locker.Acquire(context.Background(), "alice")
			assert.NoError(t, err)
			close(acquired)
			_ = locker.Release(context.Background(), second)
		}()

		select {
		case <-acquired:
			t.Fatal("second acquire should block while the lock is held")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, locker.Release(context.Background(), first))

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second acquire should proceed after release")
		}
	})

	t.Run("different scopes do not contend", func(t *testing.T) {
		locker := NewMemoryLocker()

		first, err := locker.Acquire(context.Background(), "alice")
		require.NoError(t, err)
		second, err := locker.Acquire(context.Background(), "bob")
		require.NoError(t, err)

		require.NoError(t, locker.Release(context.Background(), first))
		require.NoError(t, locker.Release(context.Background(), second))
	})

	t.Run("acquire honors context cancellation", func(t *testing.T) {
		locker := NewMemoryLocker()

		held, err := locker.Acquire(context.Background(), "alice")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locker.Acquire(ctx, "alice")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		require.NoError(t, locker.Release(context.Background(), held))
	})

	t.Run("releasing a nil lock is a no-op", func(t *testing.T) {
		locker := NewMemoryLocker()
		assert.NoError(t, locker.Release(context.Background(), nil))
	})
}
