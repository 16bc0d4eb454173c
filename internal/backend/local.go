package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/task"
)

// placedValue is a completed task's result together with the processor that
// currently holds it.
type placedValue struct {
	value any
	loc   proc.ID
}

// Local executes payloads on goroutines inside the current process. Thread,
// GPU and remote processors are all driven in-process here; a transport
// layer that forwards attempts to real remote workers would provide its own
// Backend and is out of scope for the core.
//
// Data movement is modelled explicitly: every produced value is recorded at
// the processor that produced it, and resolving an input held by a different
// processor counts as one transfer. Co-located inputs are passed by
// reference and cost nothing. Tests use the Transfers counter to assert when
// movement does and does not happen.
type Local struct {
	outcomes chan Outcome

	mu      sync.Mutex
	values  map[task.ID]placedValue
	running map[task.ID]context.CancelFunc

	transfers atomic.Int64
	wg        sync.WaitGroup
}

// NewLocal returns an in-process backend whose Outcomes channel holds at
// most buffer undelivered results.
func NewLocal(buffer int) *Local {
	if buffer < 1 {
		buffer = 1
	}
	return &Local{
		outcomes: make(chan Outcome, buffer),
		values:   make(map[task.ID]placedValue),
		running:  make(map[task.ID]context.CancelFunc),
	}
}

// Execute implements Backend.
func (b *Local) Execute(ctx context.Context, t *task.Task, p proc.Processor, attempt int) {
	runCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.running[t.ID] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()

		out := Outcome{
			TaskID:    t.ID,
			Attempt:   attempt,
			Processor: p.ID,
			Started:   time.Now(),
		}

		args, err := b.resolveArgs(t, p)
		if err != nil {
			out.Err = err
		} else {
			out.Value, out.Err = b.invoke(runCtx, t, args)
		}
		out.Finished = time.Now()

		b.mu.Lock()
		delete(b.running, t.ID)
		if out.Err == nil {
			b.values[t.ID] = placedValue{value: out.Value, loc: p.ID}
		}
		b.mu.Unlock()

		b.outcomes <- out
	}()
}

// invoke calls the payload, converting a panic into an error so failures
// stay data rather than control flow.
func (b *Local) invoke(ctx context.Context, t *task.Task, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Payload panicked.", "taskID", t.ID, "panic", r)
			value = nil
			err = fmt.Errorf("payload panic: %v", r)
		}
	}()
	return t.Payload(ctx, args)
}

// resolveArgs materializes the task's argument slots. Reference slots read
// the producer's stored value; a producer on a different processor costs one
// transfer, a co-located one is reused directly.
func (b *Local) resolveArgs(t *task.Task, p proc.Processor) ([]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	args := make([]any, len(t.Args))
	for i, slot := range t.Args {
		if !slot.IsRef {
			args[i] = slot.Literal
			continue
		}
		pv, ok := b.values[slot.Ref]
		if !ok {
			return nil, fmt.Errorf("input value for task %s not available", slot.Ref)
		}
		if pv.loc != p.ID {
			b.transfers.Add(1)
		}
		args[i] = pv.value
	}
	return args, nil
}

// Outcomes implements Backend.
func (b *Local) Outcomes() <-chan Outcome {
	return b.outcomes
}

// Cancel implements Backend.
func (b *Local) Cancel(id task.ID) {
	b.mu.Lock()
	cancel, ok := b.running[id]
	b.mu.Unlock()

	if ok {
		cancel()
	}
}

// Transfers implements Backend.
func (b *Local) Transfers() int64 {
	return b.transfers.Load()
}

// Forget drops the stored value for a task, releasing its memory once no
// dependent needs it anymore.
func (b *Local) Forget(id task.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, id)
}

// Close implements Backend.
func (b *Local) Close() {
	b.wg.Wait()
	close(b.outcomes)
}
