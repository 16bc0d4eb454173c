package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/taskgrid/internal/backend"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/eventlog"
	"github.com/vk/taskgrid/internal/future"
	"github.com/vk/taskgrid/internal/graph"
	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/task"
)

// ErrClosed is returned on handles spawned after Close.
var ErrClosed = errors.New("scheduler closed")

// control messages consumed by the decision loop. All external mutation of
// the task graph and ready queue travels through these instead of locks.
type (
	spawnMsg      struct{ t *task.Task }
	cancelMsg     struct{ id task.ID }
	registerMsg   struct{ p proc.Processor }
	deregisterMsg struct{ p proc.Processor }
	timeoutMsg    struct{ id task.ID }
)

// Stats is a point-in-time summary of a scheduler instance.
type Stats struct {
	Spawned       int64 `json:"spawned"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Retried       int64 `json:"retried"`
	Running       int64 `json:"running"`
	Processors    int   `json:"processors"`
	Transfers     int64 `json:"transfers"`
	DroppedEvents int64 `json:"dropped_events"`
}

// Scheduler is the core control loop of a scheduler instance: it accepts
// spawns, tracks dependencies, assigns ready tasks to eligible idle
// processors, and reacts to completion and failure events.
//
// Each process owns explicit Scheduler instances; there is no global
// singleton, so tests can run many independent schedulers side by side.
//
// All scheduling decisions are serialized on a single loop goroutine while
// dispatched payloads run in true parallel on the backend. Public methods
// are safe for concurrent use.
type Scheduler struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	backend backend.Backend

	registry *proc.Registry
	graph    *graph.Graph
	futures  *future.Store
	events   *eventlog.Dispatcher

	msgs     chan any
	quit     chan struct{}
	loopDone chan struct{}

	seq       atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	spawned   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	runningN  atomic.Int64

	// loop-owned state, touched only by the decision loop goroutine
	ready   readyQueue
	idle    map[proc.ID]int
	running map[task.ID]runningEntry
	timers  map[task.ID]*time.Timer
}

// runningEntry records where an attempt was dispatched. The attempt number
// ties slot bookkeeping to one specific attempt, so a stale outcome from an
// earlier attempt cannot credit a slot the current attempt still occupies.
type runningEntry struct {
	pid     proc.ID
	attempt int
}

// New constructs and starts a scheduler instance.
func New(ctx context.Context, cfg Config) *Scheduler {
	cfg.applyDefaults()

	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, cfg.Logger))

	s := &Scheduler{
		cfg:      cfg,
		ctx:      runCtx,
		cancel:   cancel,
		backend:  cfg.Backend,
		registry: proc.NewRegistry(),
		graph:    graph.New(),
		futures:  future.NewStore(),
		events:   eventlog.NewDispatcher(cfg.EventBuffer),
		msgs:     make(chan any, cfg.MessageBuffer),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		idle:     make(map[proc.ID]int),
		running:  make(map[task.ID]runningEntry),
		timers:   make(map[task.ID]*time.Timer),
	}

	go s.loop()
	return s
}

// Spawn records a new task in the graph and returns its handle. Inputs may
// be concrete values or handles of previously spawned tasks; handle inputs
// become dependency edges. Spawn is pure graph construction and does not
// wait for anything to run.
func (s *Scheduler) Spawn(payload task.Payload, inputs []any, opts ...SpawnOption) *future.Handle {
	slots := make([]task.ArgSlot, len(inputs))
	for i, in := range inputs {
		if h, ok := in.(*future.Handle); ok {
			slots[i] = task.Ref(h.ID())
		} else {
			slots[i] = task.Lit(in)
		}
	}

	t := task.New(payload, slots)
	t.DispatchTimeout = s.cfg.DispatchTimeout
	for _, opt := range opts {
		opt(t)
	}
	t.SetSeq(s.seq.Add(1))

	h := s.futures.Declare(t.ID)
	if s.closed.Load() || !s.send(spawnMsg{t: t}) {
		t.Err = ErrClosed
		t.SetState(task.Failed)
		_ = s.futures.Fail(t.ID, ErrClosed)
	}
	return h
}

// Fetch blocks until the task behind the handle resolves, then returns its
// value or re-surfaces its stored error.
func (s *Scheduler) Fetch(ctx context.Context, h *future.Handle) (any, error) {
	return h.Result(ctx)
}

// Wait blocks until the task behind the handle resolves, discarding the
// value.
func (s *Scheduler) Wait(ctx context.Context, h *future.Handle) error {
	_, err := h.Result(ctx)
	return err
}

// Cancel marks the task failed with a cancellation error and propagates to
// its dependents. Cancelling a running task additionally signals the
// backend; the payload may or may not stop immediately.
func (s *Scheduler) Cancel(h *future.Handle) {
	s.send(cancelMsg{id: h.ID()})
}

// RegisterProcessor attaches a processor to the scheduler. An empty ID is
// assigned a generated one; the stored descriptor is returned. Ready tasks
// whose scope matches the new processor become dispatchable immediately.
func (s *Scheduler) RegisterProcessor(p proc.Processor) (proc.Processor, error) {
	stored, err := s.registry.Register(p)
	if err != nil {
		return proc.Processor{}, err
	}
	s.send(registerMsg{p: stored})
	return stored, nil
}

// DeregisterProcessor detaches a processor. Tasks running on it fail with a
// processor-lost error, or are resubmitted when their retry policy allows.
func (s *Scheduler) DeregisterProcessor(id proc.ID) bool {
	p, ok := s.registry.Deregister(id)
	if !ok {
		return false
	}
	s.send(deregisterMsg{p: p})
	return true
}

// Processors returns a snapshot of the registered processors.
func (s *Scheduler) Processors() []proc.Processor {
	return s.registry.List()
}

// AddSink registers an event sink.
func (s *Scheduler) AddSink(sink eventlog.Sink) {
	s.events.AddSink(sink)
}

// RemoveSink deregisters an event sink.
func (s *Scheduler) RemoveSink(sink eventlog.Sink) {
	s.events.RemoveSink(sink)
}

// Events exposes the dispatcher so external producers, like a utilization
// sampler, can publish onto the same stream the sinks consume.
func (s *Scheduler) Events() *eventlog.Dispatcher {
	return s.events
}

// Stats returns a point-in-time summary of the instance.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Spawned:       s.spawned.Load(),
		Completed:     s.completed.Load(),
		Failed:        s.failed.Load(),
		Retried:       s.retried.Load(),
		Running:       s.runningN.Load(),
		Processors:    s.registry.Len(),
		Transfers:     s.backend.Transfers(),
		DroppedEvents: s.events.Dropped(),
	}
}

// Close shuts the instance down: running payloads are interrupted, the event
// dispatcher is flushed, and every task that has not reached a terminal state
// fails with ErrClosed, so callers blocked in Fetch or Wait always return.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.backend.Close()
		close(s.quit)
		<-s.loopDone
		s.events.Close()
	})
}

// send delivers a control message to the loop unless the scheduler has shut
// down underneath the caller.
func (s *Scheduler) send(m any) bool {
	select {
	case s.msgs <- m:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Scheduler) publish(ev eventlog.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.events.Publish(ev)
}
