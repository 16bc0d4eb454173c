package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DeclareAndResolve(t *testing.T) {
	t.Parallel()

	t.Run("resolved value reaches the waiter", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		h := s.Declare("t1")

		require.NoError(t, s.Resolve("t1", 42))

		v, err := h.Result(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.True(t, h.Resolved())
	})

	t.Run("failure reaches the waiter", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		h := s.Declare("t1")

		boom := errors.New("boom")
		require.NoError(t, s.Fail("t1", boom))

		v, err := h.Result(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Nil(t, v)
	})

	t.Run("redeclaring returns the same handle", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		h1 := s.Declare("t1")
		h2 := s.Declare("t1")
		assert.Same(t, h1, h2)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("resolving an unknown handle is an error", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		err := s.Resolve("ghost", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no handle declared")
	})

	t.Run("double resolution is an error", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		s.Declare("t1")

		require.NoError(t, s.Resolve("t1", 1))
		err := s.Resolve("t1", 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already resolved")
	})
}

func TestHandle_ConcurrentWaiters(t *testing.T) {
	t.Parallel()

	// Many goroutines fetch the same handle; every one of them must observe
	// the identical outcome without re-running anything.
	s := NewStore()
	h := s.Declare("t1")

	const waiters = 32
	results := make([]any, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.Result(context.Background())
		}(i)
	}

	require.NoError(t, s.Resolve("t1", "shared"))
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestHandle_ContextCancellation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	h := s.Declare("t1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Result(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, h.Resolved())
}

func TestStore_Release(t *testing.T) {
	t.Parallel()

	s := NewStore()
	h := s.Declare("t1")
	require.NoError(t, s.Resolve("t1", 7))

	s.Release("t1")
	assert.Equal(t, 0, s.Len())

	// A caller still holding the handle keeps its result.
	v, err := h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
