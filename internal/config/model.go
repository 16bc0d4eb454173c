package config

import "time"

// Model is the translated representation of an entire grid file.
type Model struct {
	Scheduler  Scheduler
	Processors []Processor
	Telemetry  Telemetry
	Tasks      []Task
}

// Scheduler holds instance-wide scheduling policy.
type Scheduler struct {
	// DispatchTimeout is the default time a ready task may wait with no
	// eligible processor before failing. Zero means wait indefinitely.
	DispatchTimeout time.Duration
	// EventBuffer is the event dispatcher capacity. Zero means the
	// scheduler default.
	EventBuffer int
}

// Processor describes one compute resource to register at startup.
type Processor struct {
	Name   string
	Kind   string
	Node   string
	Device int
	Slots  int
}

// Telemetry configures the optional observability surface.
type Telemetry struct {
	// MetricsPort serves /health, /status, and /metrics when positive.
	MetricsPort int
	// SocketIOURL, when set, streams scheduler events to a dashboard.
	SocketIOURL string
	// SocketIOEvent is the emitted event name. Empty means the default.
	SocketIOEvent string
	// SampleInterval is the host utilization sampling period. Zero disables
	// sampling.
	SampleInterval time.Duration
}

// Task describes one command task in the grid workload.
type Task struct {
	Name        string
	Command     string
	Args        []string
	After       []string
	Priority    int
	MaxAttempts int
	Scope       Scope
}

// Scope is the placement constraint of a grid task. At most one field is
// set; all empty means unconstrained.
type Scope struct {
	Kind      string
	Node      string
	Processor string
}
