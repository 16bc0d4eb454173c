// Package future holds pending and completed task outcomes. A Handle is the
// reference a caller keeps to await a task's result; resolution is
// single-writer (the scheduler core) and multi-reader (any number of
// concurrent waiters).
package future

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/taskgrid/internal/task"
)

// Handle references a task's eventual outcome. It holds a pending marker
// until the scheduler resolves it with a value or an error, after which
// every waiter observes the same result.
type Handle struct {
	id    task.ID
	done  chan struct{}
	value any
	err   error
}

// ID returns the ID of the task the handle refers to.
func (h *Handle) ID() task.ID {
	return h.id
}

// Done returns a channel that is closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the handle resolves or the context is cancelled, then
// returns the task's value or its stored error. It is safe to call from any
// number of goroutines; all of them observe the same outcome.
func (h *Handle) Result(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the handle already carries an outcome.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Store is the collection of handles for one scheduler instance.
type Store struct {
	mu      sync.RWMutex
	handles map[task.ID]*Handle
}

// NewStore returns an initialized, empty store.
func NewStore() *Store {
	return &Store{handles: make(map[task.ID]*Handle)}
}

// Declare creates the pending handle for a task. Declaring the same ID twice
// returns the existing handle, so retried attempts keep the original one.
func (s *Store) Declare(id task.ID) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[id]; ok {
		return h
	}
	h := &Handle{id: id, done: make(chan struct{})}
	s.handles[id] = h
	return h
}

// Lookup returns the handle for a task, if one was declared.
func (s *Store) Lookup(id task.ID) (*Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handles[id]
	return h, ok
}

// Resolve publishes a task's value. The value is written before the done
// channel is closed, so waiters never observe a partial result. Resolving an
// unknown or already-resolved handle is an error: resolution is single-writer.
func (s *Store) Resolve(id task.ID, value any) error {
	return s.publish(id, value, nil)
}

// Fail publishes a task's terminal error.
func (s *Store) Fail(id task.ID, err error) error {
	return s.publish(id, nil, err)
}

func (s *Store) publish(id task.ID, value any, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return fmt.Errorf("no handle declared for task %s", id)
	}
	select {
	case <-h.done:
		return fmt.Errorf("handle for task %s already resolved", id)
	default:
	}

	h.value = value
	h.err = err
	close(h.done)
	return nil
}

// Release drops the store's reference to a handle. Callers that still hold
// the handle keep it alive; the store simply stops retaining it.
func (s *Store) Release(id task.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// Len returns the number of retained handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
