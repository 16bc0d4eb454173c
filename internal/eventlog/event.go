// Package eventlog records scheduling and resource-utilization events for
// observability. Zero or more sinks receive an append-only stream of
// immutable events; delivery is best-effort and never blocks or slows the
// scheduler core.
package eventlog

import (
	"time"

	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/task"
)

// Type names a kind of event.
type Type string

const (
	TaskQueued    Type = "task_queued"
	TaskReady     Type = "task_ready"
	TaskRunning   Type = "task_running"
	TaskCompleted Type = "task_completed"
	TaskFailed    Type = "task_failed"
	TaskCancelled Type = "task_cancelled"

	ProcessorJoined Type = "processor_joined"
	ProcessorLeft   Type = "processor_left"

	UtilizationSample Type = "utilization_sample"
)

// Event is one immutable, timestamped record. Fields that do not apply to
// the event type are left at their zero values.
type Event struct {
	Time time.Time `json:"time"`
	Type Type      `json:"type"`

	Task    task.ID `json:"task,omitempty"`
	Label   string  `json:"label,omitempty"`
	Attempt int     `json:"attempt,omitempty"`

	Processor proc.ID `json:"processor,omitempty"`
	Node      string  `json:"node,omitempty"`

	// Err carries the message of a task's terminal error on TaskFailed.
	Err string `json:"error,omitempty"`
	// Duration is the attempt run time on TaskCompleted and TaskFailed.
	Duration time.Duration `json:"duration,omitempty"`

	// CPUPercent and MemoryPercent are set on UtilizationSample.
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
}

// Sink receives events. Implementations must tolerate concurrent delivery
// of unrelated events and must not retain or mutate the event.
type Sink interface {
	OnEvent(ev Event)
}
