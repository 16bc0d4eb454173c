package sched

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/backend"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/eventlog"
	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/scope"
	"github.com/vk/taskgrid/internal/task"
)

// loop is the single decision goroutine. It is the only writer of the task
// graph, the ready queue, and the idle/running books, which keeps the safety
// invariant (never dispatch before all dependencies completed) free of lock
// ordering concerns.
func (s *Scheduler) loop() {
	defer close(s.loopDone)
	logger := ctxlog.FromContext(s.ctx)
	logger.Debug("Scheduler loop started.")

	outcomes := s.backend.Outcomes()
	for {
		select {
		case m := <-s.msgs:
			s.handleMessage(m)
		case o, ok := <-outcomes:
			if !ok {
				// Backend closed; stop watching and wait for quit.
				outcomes = nil
				continue
			}
			s.handleOutcome(o)
		case <-s.quit:
			s.failRemaining()
			logger.Debug("Scheduler loop stopping.")
			return
		}
	}
}

// failRemaining resolves every still-pending future at shutdown so callers
// blocked in Fetch or Wait without a deadline do not hang forever.
func (s *Scheduler) failRemaining() {
	// Spawns that were buffered but never processed have futures too.
	for {
		select {
		case m := <-s.msgs:
			if sp, ok := m.(spawnMsg); ok {
				s.rejectSpawn(sp.t, ErrClosed)
			}
			continue
		default:
		}
		break
	}

	for _, t := range s.graph.Tasks() {
		if t.State().Terminal() {
			continue
		}
		t.Err = ErrClosed
		t.SetState(task.Failed)
		s.failed.Add(1)
		s.stopTimer(t.ID)
		_ = s.futures.Fail(t.ID, ErrClosed)
		s.publish(eventlog.Event{Type: eventlog.TaskFailed, Task: t.ID, Label: t.Label, Err: ErrClosed.Error()})
	}
}

func (s *Scheduler) handleMessage(m any) {
	switch msg := m.(type) {
	case spawnMsg:
		s.handleSpawn(msg.t)
	case cancelMsg:
		s.handleCancel(msg.id)
	case registerMsg:
		s.handleRegister(msg.p)
	case deregisterMsg:
		s.handleDeregister(msg.p)
	case timeoutMsg:
		s.handleTimeout(msg.id)
	}
}

func (s *Scheduler) handleSpawn(t *task.Task) {
	logger := ctxlog.FromContext(s.ctx).With("taskID", t.ID, "label", t.Label)

	if err := s.graph.Add(t); err != nil {
		logger.Error("Rejecting spawn.", "error", err)
		s.rejectSpawn(t, err)
		return
	}

	s.spawned.Add(1)
	s.publish(eventlog.Event{Type: eventlog.TaskQueued, Task: t.ID, Label: t.Label})

	pending := 0
	var failedDep *task.Task
	for _, depID := range t.Deps() {
		dep, ok := s.graph.Task(depID)
		if !ok {
			logger.Error("Rejecting spawn: unknown input task.", "dependency", depID)
			s.rejectSpawn(t, fmt.Errorf("unknown input task: %s", depID))
			return
		}
		if err := s.graph.AddEdge(depID, t.ID); err != nil {
			s.rejectSpawn(t, err)
			return
		}
		switch dep.State() {
		case task.Completed:
			// Already satisfied.
		case task.Failed:
			failedDep = dep
		default:
			pending++
		}
	}

	if failedDep != nil {
		s.failTask(t, &task.DependencyFailedError{
			TaskID:     t.ID,
			Dependency: failedDep.ID,
			Err:        failedDep.Err,
		}, nil)
		return
	}

	s.graph.SetPending(t.ID, pending)
	logger.Debug("Task spawned.", "pendingDeps", pending, "scope", t.Scope.String(), "priority", t.Priority)

	if pending == 0 {
		s.markReady(t)
	}
}

// rejectSpawn fails a task that never made it into the graph cleanly.
func (s *Scheduler) rejectSpawn(t *task.Task, err error) {
	t.Err = err
	t.SetState(task.Failed)
	s.failed.Add(1)
	_ = s.futures.Fail(t.ID, err)
	s.publish(eventlog.Event{Type: eventlog.TaskFailed, Task: t.ID, Label: t.Label, Err: err.Error()})
}

func (s *Scheduler) markReady(t *task.Task) {
	t.SetState(task.Ready)
	s.publish(eventlog.Event{Type: eventlog.TaskReady, Task: t.ID, Label: t.Label})
	heap.Push(&s.ready, t)

	if t.DispatchTimeout > 0 {
		s.armTimer(t)
	}
	s.tryDispatch()
}

func (s *Scheduler) armTimer(t *task.Task) {
	id := t.ID
	s.stopTimer(id)
	s.timers[id] = time.AfterFunc(t.DispatchTimeout, func() {
		s.send(timeoutMsg{id: id})
	})
}

func (s *Scheduler) stopTimer(id task.ID) {
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// tryDispatch assigns ready tasks to eligible idle processors: highest
// priority first, FIFO on ties, greedy and non-preemptive. Tasks that fit no
// idle processor right now go back into the queue untouched.
func (s *Scheduler) tryDispatch() {
	if s.ready.Len() == 0 {
		return
	}

	snapshot := s.registry.List()
	var deferred []*task.Task

	for s.ready.Len() > 0 {
		t := heap.Pop(&s.ready).(*task.Task)
		if t.State() != task.Ready {
			// Lazily dropped: failed or cancelled while queued.
			continue
		}

		assigned := false
		for _, p := range snapshot {
			if s.idle[p.ID] <= 0 {
				continue
			}
			if !t.Scope.Admits(p) {
				continue
			}
			s.dispatch(t, p)
			assigned = true
			break
		}
		if !assigned {
			deferred = append(deferred, t)
		}
	}

	for _, t := range deferred {
		heap.Push(&s.ready, t)
	}
}

func (s *Scheduler) dispatch(t *task.Task, p proc.Processor) {
	s.stopTimer(t.ID)
	s.idle[p.ID]--
	t.Attempt++
	t.SetState(task.Running)
	s.running[t.ID] = runningEntry{pid: p.ID, attempt: t.Attempt}
	s.runningN.Add(1)

	ctxlog.FromContext(s.ctx).Debug("Dispatching task.",
		"taskID", t.ID, "processor", p.String(), "attempt", t.Attempt)
	s.publish(eventlog.Event{
		Type:      eventlog.TaskRunning,
		Task:      t.ID,
		Label:     t.Label,
		Attempt:   t.Attempt,
		Processor: p.ID,
		Node:      p.Node,
	})

	s.backend.Execute(s.ctx, t, p, t.Attempt)
}

func (s *Scheduler) handleOutcome(o backend.Outcome) {
	logger := ctxlog.FromContext(s.ctx).With("taskID", o.TaskID, "attempt", o.Attempt)

	if e, ok := s.running[o.TaskID]; ok && e.attempt == o.Attempt {
		delete(s.running, o.TaskID)
		s.runningN.Add(-1)
		if _, stillThere := s.idle[e.pid]; stillThere {
			s.idle[e.pid]++
		}
	}

	t, ok := s.graph.Task(o.TaskID)
	if !ok {
		s.tryDispatch()
		return
	}
	if t.State() != task.Running || o.Attempt != t.Attempt {
		// Stale: the task was cancelled, failed through its dependency
		// chain, or resubmitted after a processor loss.
		logger.Debug("Discarding stale outcome.", "state", t.State().String())
		s.tryDispatch()
		return
	}

	if o.Err != nil {
		if t.Retry.Allows(t.Attempt) {
			logger.Warn("Attempt failed, retrying.", "error", o.Err)
			s.retried.Add(1)
			s.markReady(t)
		} else {
			s.failTask(t, &task.PayloadError{TaskID: t.ID, Err: o.Err}, &o)
		}
		s.tryDispatch()
		return
	}

	t.SetState(task.Completed)
	s.completed.Add(1)
	logger.Debug("Task completed.", "duration", o.Duration())
	if err := s.futures.Resolve(t.ID, o.Value); err != nil {
		logger.Error("Result publication failed.", "error", err)
	}
	s.publish(eventlog.Event{
		Type:      eventlog.TaskCompleted,
		Task:      t.ID,
		Label:     t.Label,
		Attempt:   o.Attempt,
		Processor: o.Processor,
		Duration:  o.Duration(),
	})

	dependents, _ := s.graph.Dependents(t.ID)
	for _, depID := range dependents {
		dep, ok := s.graph.Task(depID)
		if !ok || dep.State() != task.Queued {
			continue
		}
		if s.graph.DecrementPending(depID) == 0 {
			s.markReady(dep)
		}
	}

	s.tryDispatch()
}

// failTask records a terminal error on t and eagerly propagates failure to
// every direct and transitive dependent, none of which has ever been
// dispatched (their dependency never completed).
func (s *Scheduler) failTask(t *task.Task, err error, o *backend.Outcome) {
	logger := ctxlog.FromContext(s.ctx)

	t.Err = err
	t.SetState(task.Failed)
	s.failed.Add(1)
	s.stopTimer(t.ID)
	_ = s.futures.Fail(t.ID, err)

	ev := eventlog.Event{Type: eventlog.TaskFailed, Task: t.ID, Label: t.Label, Err: err.Error()}
	if o != nil {
		ev.Attempt = o.Attempt
		ev.Processor = o.Processor
		ev.Duration = o.Duration()
	}
	s.publish(ev)
	logger.Error("Task failed.", "taskID", t.ID, "error", err)

	for _, dep := range s.graph.FailClosure(t.ID) {
		depErr := &task.DependencyFailedError{TaskID: dep.ID, Dependency: t.ID, Err: err}
		dep.Err = depErr
		dep.SetState(task.Failed)
		s.failed.Add(1)
		s.stopTimer(dep.ID)
		_ = s.futures.Fail(dep.ID, depErr)
		s.publish(eventlog.Event{Type: eventlog.TaskFailed, Task: dep.ID, Label: dep.Label, Err: depErr.Error()})
		logger.Warn("Failing dependent task due to upstream failure.", "taskID", dep.ID, "dependency", t.ID)
	}
}

func (s *Scheduler) handleCancel(id task.ID) {
	t, ok := s.graph.Task(id)
	if !ok || t.State().Terminal() {
		return
	}

	if t.State() == task.Running {
		// Best effort: the payload observes context cancellation. The slot
		// comes back when the stale outcome arrives.
		s.backend.Cancel(id)
	}

	s.publish(eventlog.Event{Type: eventlog.TaskCancelled, Task: t.ID, Label: t.Label})
	s.failTask(t, &task.CancelledError{TaskID: id}, nil)
	s.tryDispatch()
}

func (s *Scheduler) handleRegister(p proc.Processor) {
	s.idle[p.ID] = p.Slots
	ctxlog.FromContext(s.ctx).Info("🖥️ Processor joined.", "processor", p.String(), "slots", p.Slots)
	s.publish(eventlog.Event{Type: eventlog.ProcessorJoined, Processor: p.ID, Node: p.Node})
	s.tryDispatch()
}

func (s *Scheduler) handleDeregister(p proc.Processor) {
	logger := ctxlog.FromContext(s.ctx)
	logger.Info("🔌 Processor left.", "processor", p.String())

	delete(s.idle, p.ID)
	s.publish(eventlog.Event{Type: eventlog.ProcessorLeft, Processor: p.ID, Node: p.Node})

	var lost []task.ID
	for tid, e := range s.running {
		if e.pid == p.ID {
			lost = append(lost, tid)
		}
	}

	for _, tid := range lost {
		delete(s.running, tid)
		s.runningN.Add(-1)
		s.backend.Cancel(tid)

		t, ok := s.graph.Task(tid)
		if !ok {
			continue
		}
		if t.Retry.Allows(t.Attempt) {
			logger.Warn("Resubmitting task after processor loss.", "taskID", tid, "processor", p.String())
			s.retried.Add(1)
			s.markReady(t)
		} else {
			s.failTask(t, &task.ProcessorLostError{TaskID: tid, Processor: p.String()}, nil)
		}
	}

	s.tryDispatch()
}

// handleTimeout fires when a task sat Ready for its dispatch timeout. The
// timeout only fails the task while its eligible set is empty; a task that
// is merely waiting for busy-but-matching processors keeps waiting.
func (s *Scheduler) handleTimeout(id task.ID) {
	t, ok := s.graph.Task(id)
	if !ok || t.State() != task.Ready {
		return
	}

	if len(scope.Eligible(t.Scope, s.registry.List())) == 0 {
		s.failTask(t, &task.NoEligibleProcessorError{TaskID: id, Scope: t.Scope.String()}, nil)
		return
	}
	s.armTimer(t)
}
