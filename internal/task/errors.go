package task

import "fmt"

// The scheduler records exactly one of the error types below on every failed
// task. Fetch and Wait surface the stored error unchanged, so callers can
// use errors.As to recover the kind and its payload.

// PayloadError means the task's own payload returned an error or panicked.
type PayloadError struct {
	TaskID ID
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("task %s: payload failed: %v", e.TaskID, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// DependencyFailedError means an ancestor of the task failed, so the task
// was marked failed without ever being dispatched. Err is the ancestor's
// terminal error.
type DependencyFailedError struct {
	TaskID     ID
	Dependency ID
	Err        error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("task %s: dependency %s failed: %v", e.TaskID, e.Dependency, e.Err)
}

func (e *DependencyFailedError) Unwrap() error { return e.Err }

// NoEligibleProcessorError means the task's scope matched no registered
// processor within its configured dispatch timeout.
type NoEligibleProcessorError struct {
	TaskID ID
	Scope  string
}

func (e *NoEligibleProcessorError) Error() string {
	return fmt.Sprintf("task %s: no eligible processor for scope %s", e.TaskID, e.Scope)
}

// ProcessorLostError means the processor the task was running on left the
// registry before the task finished.
type ProcessorLostError struct {
	TaskID    ID
	Processor string
}

func (e *ProcessorLostError) Error() string {
	return fmt.Sprintf("task %s: processor lost: %s", e.TaskID, e.Processor)
}

// CancelledError means the task was cancelled by a caller.
type CancelledError struct {
	TaskID ID
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("task %s: cancelled", e.TaskID)
}
