package task

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/taskgrid/internal/scope"
)

// ID uniquely identifies a task within a scheduler instance. Retried
// attempts of a task share the same ID.
type ID string

// NewID generates a random task identifier.
func NewID() ID {
	return ID(uuid.New().String())
}

// Payload is the deferred unit of work a task carries. Arguments arrive in
// slot order with every result reference already resolved to its value.
// A payload reports failure by returning an error; panics are captured by
// the execution backend and converted into errors.
type Payload func(ctx context.Context, args []any) (any, error)

// ArgSlot is one argument position of a payload: either a literal value or
// a reference to another task's eventual result.
type ArgSlot struct {
	// Literal is the concrete value for non-reference slots.
	Literal any
	// Ref names the producing task for reference slots.
	Ref ID
	// IsRef distinguishes the two variants.
	IsRef bool
}

// Lit builds a literal argument slot.
func Lit(v any) ArgSlot {
	return ArgSlot{Literal: v}
}

// Ref builds an argument slot that resolves to the result of another task.
func Ref(id ID) ArgSlot {
	return ArgSlot{Ref: id, IsRef: true}
}

// State is the execution state of a task. Transitions run strictly forward:
// Queued -> Ready -> Running -> {Completed | Failed}. A retried attempt
// moves the task from Running or Ready back to Ready without ever revisiting
// a terminal state.
type State int32

const (
	// Queued means the task is waiting for its dependencies to complete.
	Queued State = iota
	// Ready means all dependencies completed and the task awaits dispatch.
	Ready
	// Running means the task has been assigned to a processor.
	Running
	// Completed means the task finished and its result is available.
	Completed
	// Failed means the task finished with an error, was cancelled, or a
	// dependency failed before it could run.
	Failed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// RetryPolicy controls automatic resubmission after a payload or processor
// failure. The zero value means no automatic retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts allowed, including the
	// first. Values below 1 are treated as 1.
	MaxAttempts int
}

// Allows reports whether another attempt may start after `attempts` attempts
// have already been consumed.
func (p RetryPolicy) Allows(attempts int) bool {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	return attempts < max
}

// Task is a unit of deferred, dependency-tracked work. The scheduler core is
// the only writer of a task's mutable fields; the state field is atomic so
// observers (status endpoints, tests) can read it without coordination.
type Task struct {
	// ID is the unique identity of the task, stable across retries.
	ID ID
	// Label is optional human-readable metadata carried into events.
	Label string
	// Payload is the callable to execute.
	Payload Payload
	// Args are the payload's argument slots in call order.
	Args []ArgSlot
	// Scope is the placement constraint. The zero value admits any processor.
	Scope scope.Scope
	// Priority orders dispatch; higher runs first. Ties break by spawn order.
	Priority int
	// Retry is the resubmission policy for this task.
	Retry RetryPolicy
	// DispatchTimeout, when positive, fails the task if it sits Ready with an
	// empty eligible processor set for longer than this duration.
	DispatchTimeout time.Duration

	// Attempt counts started execution attempts. Written only by the
	// scheduler loop.
	Attempt int
	// Err holds the terminal error for failed tasks. Written once by the
	// scheduler loop before the state becomes Failed.
	Err error

	state atomic.Int32
	seq   uint64
}

// New builds a task with a generated ID in the Queued state.
func New(payload Payload, args []ArgSlot) *Task {
	return &Task{
		ID:      NewID(),
		Payload: payload,
		Args:    args,
	}
}

// State atomically reads the task's current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// SetState atomically writes the task's state.
func (t *Task) SetState(s State) {
	t.state.Store(int32(s))
}

// Deps returns the IDs of all tasks referenced by the argument slots, in
// slot order and with duplicates removed.
func (t *Task) Deps() []ID {
	seen := make(map[ID]struct{}, len(t.Args))
	var deps []ID
	for _, a := range t.Args {
		if !a.IsRef {
			continue
		}
		if _, ok := seen[a.Ref]; ok {
			continue
		}
		seen[a.Ref] = struct{}{}
		deps = append(deps, a.Ref)
	}
	return deps
}

// Seq returns the FIFO sequence number assigned at spawn time.
func (t *Task) Seq() uint64 {
	return t.seq
}

// SetSeq records the FIFO sequence number. Called once by the scheduler.
func (t *Task) SetSeq(seq uint64) {
	t.seq = seq
}
