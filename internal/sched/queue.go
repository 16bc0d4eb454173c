package sched

import "github.com/vk/taskgrid/internal/task"

// readyQueue is a max-heap of ready tasks ordered by priority, with FIFO
// spawn order breaking ties. Entries whose task has left the Ready state are
// removed lazily when popped.
type readyQueue []*task.Task

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].Seq() < q[j].Seq()
}

func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *readyQueue) Push(x any) {
	*q = append(*q, x.(*task.Task))
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
