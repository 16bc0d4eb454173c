package sched

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/taskgrid/internal/task"
)

func queued(id task.ID, priority int, seq uint64) *task.Task {
	t := &task.Task{ID: id, Priority: priority}
	t.SetSeq(seq)
	return t
}

func TestReadyQueue_Ordering(t *testing.T) {
	t.Parallel()

	t.Run("higher priority pops first", func(t *testing.T) {
		t.Parallel()
		var q readyQueue
		heap.Push(&q, queued("low", 0, 1))
		heap.Push(&q, queued("high", 10, 2))
		heap.Push(&q, queued("mid", 5, 3))

		assert.Equal(t, task.ID("high"), heap.Pop(&q).(*task.Task).ID)
		assert.Equal(t, task.ID("mid"), heap.Pop(&q).(*task.Task).ID)
		assert.Equal(t, task.ID("low"), heap.Pop(&q).(*task.Task).ID)
	})

	t.Run("equal priority pops in spawn order", func(t *testing.T) {
		t.Parallel()
		var q readyQueue
		heap.Push(&q, queued("third", 1, 30))
		heap.Push(&q, queued("first", 1, 10))
		heap.Push(&q, queued("second", 1, 20))

		assert.Equal(t, task.ID("first"), heap.Pop(&q).(*task.Task).ID)
		assert.Equal(t, task.ID("second"), heap.Pop(&q).(*task.Task).ID)
		assert.Equal(t, task.ID("third"), heap.Pop(&q).(*task.Task).ID)
	})
}
