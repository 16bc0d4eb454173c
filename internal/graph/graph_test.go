package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/task"
)

// addTask is a helper that inserts a fresh task with the given ID.
func addTask(t *testing.T, g *Graph, id task.ID) *task.Task {
	t.Helper()
	tk := &task.Task{ID: id}
	require.NoError(t, g.Add(tk))
	return tk
}

func TestGraph_Add(t *testing.T) {
	t.Parallel()

	t.Run("adds a task", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "a")

		got, ok := g.Task("a")
		require.True(t, ok)
		assert.Equal(t, task.ID("a"), got.ID)
		assert.Equal(t, 1, g.Len())
	})

	t.Run("rejects duplicate IDs", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "a")

		err := g.Add(&task.Task{ID: "a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already in graph")
	})
}

func TestGraph_AddEdge(t *testing.T) {
	t.Parallel()

	t.Run("links producer to consumer", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "producer")
		addTask(t, g, "consumer")

		require.NoError(t, g.AddEdge("producer", "consumer"))

		deps, err := g.Dependencies("consumer")
		require.NoError(t, err)
		assert.Equal(t, []task.ID{"producer"}, deps)

		dependents, err := g.Dependents("producer")
		require.NoError(t, err)
		assert.Equal(t, []task.ID{"consumer"}, dependents)
	})

	t.Run("rejects self-referential edges", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "a")

		err := g.AddEdge("a", "a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "self-referential edge not allowed")
	})

	t.Run("rejects missing source", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "b")

		err := g.AddEdge("missing", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source task not found")
	})

	t.Run("rejects missing destination", func(t *testing.T) {
		t.Parallel()
		g := New()
		addTask(t, g, "a")

		err := g.AddEdge("a", "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "destination task not found")
	})
}

func TestGraph_PendingCounters(t *testing.T) {
	t.Parallel()

	g := New()
	addTask(t, g, "a")

	g.SetPending("a", 2)
	assert.Equal(t, 2, g.Pending("a"))

	assert.Equal(t, 1, g.DecrementPending("a"))
	assert.Equal(t, 0, g.DecrementPending("a"))
	assert.Equal(t, 0, g.Pending("a"))
}

func TestGraph_FailClosure(t *testing.T) {
	t.Parallel()

	t.Run("collects transitive non-terminal dependents", func(t *testing.T) {
		t.Parallel()

		// a -> b -> d, a -> c. Failing a must reach b, c, and d.
		g := New()
		addTask(t, g, "a")
		addTask(t, g, "b")
		addTask(t, g, "c")
		addTask(t, g, "d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("a", "c"))
		require.NoError(t, g.AddEdge("b", "d"))

		closure := g.FailClosure("a")

		ids := make([]task.ID, 0, len(closure))
		for _, tk := range closure {
			ids = append(ids, tk.ID)
		}
		assert.ElementsMatch(t, []task.ID{"b", "c", "d"}, ids)
	})

	t.Run("skips dependents already in a terminal state", func(t *testing.T) {
		t.Parallel()

		g := New()
		addTask(t, g, "a")
		done := addTask(t, g, "b")
		addTask(t, g, "c")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("a", "c"))

		done.SetState(task.Completed)

		closure := g.FailClosure("a")
		require.Len(t, closure, 1)
		assert.Equal(t, task.ID("c"), closure[0].ID)
	})

	t.Run("returns nil for unknown roots", func(t *testing.T) {
		t.Parallel()
		g := New()
		assert.Nil(t, g.FailClosure("ghost"))
	})

	t.Run("visits diamond dependents once", func(t *testing.T) {
		t.Parallel()

		// a -> b -> d and a -> c -> d. d must appear exactly once.
		g := New()
		addTask(t, g, "a")
		addTask(t, g, "b")
		addTask(t, g, "c")
		addTask(t, g, "d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("a", "c"))
		require.NoError(t, g.AddEdge("b", "d"))
		require.NoError(t, g.AddEdge("c", "d"))

		closure := g.FailClosure("a")
		assert.Len(t, closure, 3)
	})
}
