package eventlog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/task"
)

// recordingSink collects every delivered event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
}

func (s *recordingSink) OnEvent(ev Event) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(16)
	sink := &recordingSink{}
	d.AddSink(sink)

	d.Publish(Event{Type: TaskQueued, Task: task.ID("a")})
	d.Publish(Event{Type: TaskRunning, Task: task.ID("a")})
	d.Publish(Event{Type: TaskCompleted, Task: task.ID("a")})
	d.Close()

	events := sink.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, TaskQueued, events[0].Type)
	assert.Equal(t, TaskRunning, events[1].Type)
	assert.Equal(t, TaskCompleted, events[2].Type)
}

func TestDispatcher_FansOutToAllSinks(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(16)
	first := &recordingSink{}
	second := &recordingSink{}
	d.AddSink(first)
	d.AddSink(second)

	d.Publish(Event{Type: TaskCompleted})
	d.Close()

	assert.Len(t, first.snapshot(), 1)
	assert.Len(t, second.snapshot(), 1)
}

func TestDispatcher_RemoveSink(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(16)
	sink := &recordingSink{}
	d.AddSink(sink)
	d.RemoveSink(sink)

	d.Publish(Event{Type: TaskCompleted})
	d.Close()

	assert.Empty(t, sink.snapshot())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()

	// A sink that never finishes its first delivery wedges the pump, so once
	// the buffer is full every further publish must be dropped, not blocked.
	gate := make(chan struct{})
	sink := &recordingSink{gate: gate}

	d := NewDispatcher(2)
	d.AddSink(sink)

	for i := 0; i < 10; i++ {
		d.Publish(Event{Type: TaskQueued})
	}

	assert.Eventually(t, func() bool {
		return d.Dropped() > 0
	}, time.Second, 10*time.Millisecond)

	close(gate)
	d.Close()

	delivered := int64(len(sink.snapshot()))
	assert.Equal(t, int64(10), delivered+d.Dropped())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(4)
	d.Close()
	d.Close()
}
