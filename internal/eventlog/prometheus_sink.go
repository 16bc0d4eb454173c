package eventlog

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/taskgrid/internal/task"
)

// PrometheusSink translates scheduler events into Prometheus metrics so the
// telemetry layer can scrape them.
type PrometheusSink struct {
	tasksTotal   *prometheus.CounterVec
	tasksRunning prometheus.Gauge
	taskDuration prometheus.Histogram
	processors   prometheus.Gauge
	cpuPercent   prometheus.Gauge
	memPercent   prometheus.Gauge

	// running tracks which tasks currently occupy the running gauge. A
	// retried attempt leaves Running via TaskReady, and a cancelled or
	// orphaned attempt via TaskCancelled or a zero-duration TaskFailed, so
	// the gauge cannot be kept balanced from event types alone.
	mu      sync.Mutex
	running map[task.ID]struct{}
}

// NewPrometheusSink builds a sink and registers its collectors with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		running: make(map[task.ID]struct{}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgrid_tasks_total",
			Help: "Tasks that reached a state, labelled by state.",
		}, []string{"state"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskgrid_tasks_running",
			Help: "Tasks currently running on a processor.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskgrid_task_duration_seconds",
			Help:    "Wall-clock run time of completed task attempts.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		processors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskgrid_processors",
			Help: "Processors currently registered.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskgrid_host_cpu_percent",
			Help: "Host CPU utilization from the last sample.",
		}),
		memPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskgrid_host_memory_percent",
			Help: "Host memory utilization from the last sample.",
		}),
	}
	reg.MustRegister(s.tasksTotal, s.tasksRunning, s.taskDuration, s.processors, s.cpuPercent, s.memPercent)
	return s
}

// OnEvent implements Sink.
func (s *PrometheusSink) OnEvent(ev Event) {
	switch ev.Type {
	case TaskQueued:
		s.tasksTotal.WithLabelValues("queued").Inc()
	case TaskReady:
		s.tasksTotal.WithLabelValues("ready").Inc()
		// A retried attempt goes back to Ready without a failure event.
		s.markStopped(ev.Task)
	case TaskRunning:
		s.tasksTotal.WithLabelValues("running").Inc()
		s.markRunning(ev.Task)
	case TaskCompleted:
		s.tasksTotal.WithLabelValues("completed").Inc()
		s.markStopped(ev.Task)
		s.taskDuration.Observe(ev.Duration.Seconds())
	case TaskFailed:
		s.tasksTotal.WithLabelValues("failed").Inc()
		s.markStopped(ev.Task)
		if ev.Duration > 0 {
			s.taskDuration.Observe(ev.Duration.Seconds())
		}
	case TaskCancelled:
		s.tasksTotal.WithLabelValues("cancelled").Inc()
		s.markStopped(ev.Task)
	case ProcessorJoined:
		s.processors.Inc()
	case ProcessorLeft:
		s.processors.Dec()
	case UtilizationSample:
		s.cpuPercent.Set(ev.CPUPercent)
		s.memPercent.Set(ev.MemoryPercent)
	}
}

func (s *PrometheusSink) markRunning(id task.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; !ok {
		s.running[id] = struct{}{}
		s.tasksRunning.Inc()
	}
}

// markStopped releases id's hold on the running gauge, if it has one.
func (s *PrometheusSink) markStopped(id task.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		delete(s.running, id)
		s.tasksRunning.Dec()
	}
}
