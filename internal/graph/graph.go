package graph

import (
	"fmt"
	"sync"

	"github.com/vk/taskgrid/internal/task"
)

// Graph is the dependency graph of all tasks spawned into a scheduler
// instance. Edges point from producer to consumer, and a reverse index is
// kept so a completing task can reach its direct dependents in O(out-degree).
//
// Edges can only target tasks that already exist, so the graph is acyclic by
// construction and no cycle-detection pass is needed.
//
// The scheduler loop is the only mutator; the mutex makes concurrent
// read-only inspection (status endpoints, tests) safe.
type Graph struct {
	mu    sync.RWMutex
	nodes map[task.ID]*node
}

type node struct {
	t          *task.Task
	deps       map[task.ID]*node
	dependents map[task.ID]*node
	pending    int
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[task.ID]*node),
	}
}

// Add inserts a task with no edges. It is an error to add the same ID twice.
func (g *Graph) Add(t *task.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[t.ID]; ok {
		return fmt.Errorf("task already in graph: %s", t.ID)
	}

	g.nodes[t.ID] = &node{
		t:          t,
		deps:       make(map[task.ID]*node),
		dependents: make(map[task.ID]*node),
	}
	return nil
}

// AddEdge creates a directed edge from the `fromID` task to the `toID` task,
// meaning `toID` consumes the result of `fromID`. An error is returned if
// either task does not exist or if the edge would be self-referential.
func (g *Graph) AddEdge(fromID, toID task.ID) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source task not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination task not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Task looks up a task by ID.
func (g *Graph) Task(id task.ID) (*task.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.t, true
}

// Dependencies returns the IDs of the tasks the given task consumes.
func (g *Graph) Dependencies(id task.ID) ([]task.ID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}

	deps := make([]task.ID, 0, len(n.deps))
	for depID := range n.deps {
		deps = append(deps, depID)
	}
	return deps, nil
}

// Dependents returns the IDs of the tasks that consume the given task.
func (g *Graph) Dependents(id task.ID) ([]task.ID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}

	dependents := make([]task.ID, 0, len(n.dependents))
	for depID := range n.dependents {
		dependents = append(dependents, depID)
	}
	return dependents, nil
}

// SetPending records the number of unmet dependencies for a task.
func (g *Graph) SetPending(id task.ID, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if nd, ok := g.nodes[id]; ok {
		nd.pending = n
	}
}

// DecrementPending decrements the unmet-dependency counter for a task and
// returns the new value. A task with a zero counter is ready for dispatch.
func (g *Graph) DecrementPending(id task.ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	nd, ok := g.nodes[id]
	if !ok {
		return 0
	}
	nd.pending--
	return nd.pending
}

// Pending returns the unmet-dependency counter for a task.
func (g *Graph) Pending(id task.ID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if nd, ok := g.nodes[id]; ok {
		return nd.pending
	}
	return 0
}

// FailClosure walks every direct and transitive dependent of the given task
// and returns the ones that have not reached a terminal state, in
// breadth-first order. The caller marks them failed; collecting them here
// keeps the traversal and the state transition in one place each.
func (g *Graph) FailClosure(rootID task.ID) []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	root, ok := g.nodes[rootID]
	if !ok {
		return nil
	}

	var out []*task.Task
	visited := map[task.ID]struct{}{rootID: {}}
	queue := make([]*node, 0, len(root.dependents))
	for _, d := range root.dependents {
		queue = append(queue, d)
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, seen := visited[n.t.ID]; seen {
			continue
		}
		visited[n.t.ID] = struct{}{}

		if !n.t.State().Terminal() {
			out = append(out, n.t)
		}
		for _, d := range n.dependents {
			queue = append(queue, d)
		}
	}
	return out
}

// Tasks returns an unordered snapshot of every task in the graph.
func (g *Graph) Tasks() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*task.Task, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.t)
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
