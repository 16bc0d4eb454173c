package sched

import (
	"log/slog"
	"time"

	"github.com/vk/taskgrid/internal/backend"
	"github.com/vk/taskgrid/internal/scope"
	"github.com/vk/taskgrid/internal/task"
)

// Config holds the construction parameters of a scheduler instance. The zero
// value is usable: it runs an in-process backend, waits indefinitely for a
// matching processor, and logs through the process default logger.
type Config struct {
	// Logger receives the scheduler's own log output. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// Backend executes dispatched tasks. Defaults to an in-process backend.
	Backend backend.Backend
	// DispatchTimeout, when positive, is the default time a ready task may
	// wait with an empty eligible processor set before failing. Individual
	// tasks can override it at spawn time.
	DispatchTimeout time.Duration
	// EventBuffer is the capacity of the event dispatcher. Defaults to 256.
	EventBuffer int
	// MessageBuffer is the capacity of the control message queue. Defaults
	// to 256.
	MessageBuffer int
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Backend == nil {
		c.Backend = backend.NewLocal(128)
	}
	if c.EventBuffer < 1 {
		c.EventBuffer = 256
	}
	if c.MessageBuffer < 1 {
		c.MessageBuffer = 256
	}
}

// SpawnOption customizes a single spawned task.
type SpawnOption func(*task.Task)

// WithScope constrains which processors may run the task.
func WithScope(s scope.Scope) SpawnOption {
	return func(t *task.Task) { t.Scope = s }
}

// WithPriority orders the task in the ready queue; higher runs first.
func WithPriority(p int) SpawnOption {
	return func(t *task.Task) { t.Priority = p }
}

// WithLabel attaches human-readable metadata carried into events and logs.
func WithLabel(label string) SpawnOption {
	return func(t *task.Task) { t.Label = label }
}

// WithRetry allows the task to be resubmitted after a payload or processor
// failure, up to maxAttempts total attempts.
func WithRetry(maxAttempts int) SpawnOption {
	return func(t *task.Task) { t.Retry = task.RetryPolicy{MaxAttempts: maxAttempts} }
}

// WithDispatchTimeout overrides the scheduler's default dispatch timeout for
// this task.
func WithDispatchTimeout(d time.Duration) SpawnOption {
	return func(t *task.Task) { t.DispatchTimeout = d }
}
