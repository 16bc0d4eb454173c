// Package backend runs assigned tasks on their target processors. It is the
// only component that touches payload code: it locates input values (moving
// them between processors when producer and consumer are not co-located),
// invokes the payload, and reports an Outcome back to the scheduler core.
//
// Errors are data at this boundary. A backend never panics across it and
// never raises: payload errors and captured panics travel inside the
// Outcome so the scheduler can always proceed to update state and propagate.
package backend

import (
	"context"
	"time"

	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/task"
)

// Outcome is the result of one execution attempt.
type Outcome struct {
	// TaskID identifies the task.
	TaskID task.ID
	// Attempt is the attempt number this outcome belongs to, starting at 1.
	Attempt int
	// Processor is the processor the attempt ran on.
	Processor proc.ID
	// Value is the payload's return value on success.
	Value any
	// Err is the payload's error (or captured panic) on failure. Nil on
	// success.
	Err error
	// Started and Finished bound the attempt's wall-clock run time.
	Started  time.Time
	Finished time.Time
}

// Duration returns the attempt's wall-clock run time.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Backend executes tasks on processors. Execute launches the attempt and
// returns immediately; the result arrives later on the Outcomes channel.
// Implementations must be safe for the scheduler loop to call concurrently
// with running attempts.
type Backend interface {
	// Execute starts the given attempt of t on processor p. The context is
	// the scheduler's run context; cancelling it interrupts the payload.
	Execute(ctx context.Context, t *task.Task, p proc.Processor, attempt int)

	// Outcomes streams finished attempts. The channel is closed by Close
	// after all in-flight attempts have reported.
	Outcomes() <-chan Outcome

	// Cancel requests best-effort interruption of a running attempt. The
	// payload may or may not stop immediately; its outcome is still
	// delivered and the scheduler discards it as stale.
	Cancel(id task.ID)

	// Transfers returns the number of input values that had to be moved
	// between processors so far.
	Transfers() int64

	// Close waits for in-flight attempts to report, then closes the
	// Outcomes channel. The caller must keep draining Outcomes until it is
	// closed, or Close may block forever.
	Close()
}
