package eventlog

import "log/slog"

// SlogSink writes events to a structured logger. Task completions and
// failures land at info level, everything else at debug.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink logging through the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// OnEvent implements Sink.
func (s *SlogSink) OnEvent(ev Event) {
	attrs := []any{"type", string(ev.Type)}
	if ev.Task != "" {
		attrs = append(attrs, "taskID", ev.Task)
	}
	if ev.Label != "" {
		attrs = append(attrs, "label", ev.Label)
	}
	if ev.Processor != "" {
		attrs = append(attrs, "processor", ev.Processor)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration", ev.Duration)
	}

	switch ev.Type {
	case TaskCompleted:
		s.logger.Info("✅ Task completed.", attrs...)
	case TaskFailed:
		s.logger.Info("❌ Task failed.", append(attrs, "error", ev.Err)...)
	case ProcessorJoined, ProcessorLeft:
		s.logger.Info("Processor membership changed.", append(attrs, "node", ev.Node)...)
	case UtilizationSample:
		s.logger.Debug("Utilization sample.", "cpu_percent", ev.CPUPercent, "memory_percent", ev.MemoryPercent)
	default:
		s.logger.Debug("Scheduler event.", attrs...)
	}
}
