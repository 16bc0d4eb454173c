package eventlog

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vk/taskgrid/internal/task"
)

func TestPrometheusSink_RunningGauge(t *testing.T) {
	t.Parallel()

	t.Run("completed attempt releases the gauge", func(t *testing.T) {
		t.Parallel()
		s := NewPrometheusSink(prometheus.NewRegistry())

		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a")})
		assert.Equal(t, 1.0, testutil.ToFloat64(s.tasksRunning))

		s.OnEvent(Event{Type: TaskCompleted, Task: task.ID("a"), Duration: time.Millisecond})
		assert.Equal(t, 0.0, testutil.ToFloat64(s.tasksRunning))
	})

	t.Run("retried attempt releases the gauge on requeue", func(t *testing.T) {
		t.Parallel()
		s := NewPrometheusSink(prometheus.NewRegistry())

		// A failed attempt with retry budget left goes straight back to
		// Ready; no failure event is published for the attempt.
		s.OnEvent(Event{Type: TaskQueued, Task: task.ID("a")})
		s.OnEvent(Event{Type: TaskReady, Task: task.ID("a")})
		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a"), Attempt: 1})
		s.OnEvent(Event{Type: TaskReady, Task: task.ID("a")})
		assert.Equal(t, 0.0, testutil.ToFloat64(s.tasksRunning))

		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a"), Attempt: 2})
		s.OnEvent(Event{Type: TaskCompleted, Task: task.ID("a"), Duration: time.Millisecond})
		assert.Equal(t, 0.0, testutil.ToFloat64(s.tasksRunning))
	})

	t.Run("running task cancelled mid-flight releases the gauge", func(t *testing.T) {
		t.Parallel()
		s := NewPrometheusSink(prometheus.NewRegistry())

		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a")})
		s.OnEvent(Event{Type: TaskCancelled, Task: task.ID("a")})
		assert.Equal(t, 0.0, testutil.ToFloat64(s.tasksRunning))
	})

	t.Run("processor loss releases the gauge despite zero duration", func(t *testing.T) {
		t.Parallel()
		s := NewPrometheusSink(prometheus.NewRegistry())

		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a")})
		s.OnEvent(Event{Type: TaskFailed, Task: task.ID("a"), Err: "processor lost"})
		assert.Equal(t, 0.0, testutil.ToFloat64(s.tasksRunning))
	})

	t.Run("failure of a never-running task leaves the gauge alone", func(t *testing.T) {
		t.Parallel()
		s := NewPrometheusSink(prometheus.NewRegistry())

		s.OnEvent(Event{Type: TaskRunning, Task: task.ID("a")})
		s.OnEvent(Event{Type: TaskFailed, Task: task.ID("b"), Err: "dependency failed"})
		assert.Equal(t, 1.0, testutil.ToFloat64(s.tasksRunning))
	})
}
