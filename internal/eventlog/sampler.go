package eventlog

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/vk/taskgrid/internal/ctxlog"
)

// Sampler periodically publishes host resource-utilization events so the
// telemetry layer can correlate scheduling decisions with load.
type Sampler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	node       string
	stop       chan struct{}
	done       chan struct{}
}

// NewSampler starts a sampler publishing to d every interval.
func NewSampler(ctx context.Context, d *Dispatcher, node string, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Sampler{
		dispatcher: d,
		interval:   interval,
		node:       node,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)
	logger := ctxlog.FromContext(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := Event{Time: time.Now(), Type: UtilizationSample, Node: s.node}

			if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
				ev.CPUPercent = percents[0]
			} else if err != nil {
				logger.Debug("CPU sample failed.", "error", err)
			}
			if vm, err := mem.VirtualMemory(); err == nil {
				ev.MemoryPercent = vm.UsedPercent
			} else {
				logger.Debug("Memory sample failed.", "error", err)
			}

			s.dispatcher.Publish(ev)
		}
	}
}

// Stop halts sampling and waits for the sampler goroutine to exit.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}
