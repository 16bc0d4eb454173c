package eventlog

import (
	"sync"
	"sync/atomic"
)

// Dispatcher fans events out to registered sinks from its own goroutine so
// the publisher is never slowed by a sink. Publish is non-blocking: when the
// buffer is full the event is dropped and counted instead of stalling
// scheduling.
type Dispatcher struct {
	ch      chan Event
	dropped atomic.Int64

	mu    sync.RWMutex
	sinks []Sink

	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher returns a running dispatcher with the given buffer capacity.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{ch: make(chan Event, buffer)}
	d.wg.Add(1)
	go d.pump()
	return d
}

func (d *Dispatcher) pump() {
	defer d.wg.Done()
	for ev := range d.ch {
		d.mu.RLock()
		sinks := d.sinks
		d.mu.RUnlock()

		for _, s := range sinks {
			s.OnEvent(ev)
		}
	}
}

// AddSink registers a sink. Events published after registration are
// delivered to it.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sinks := make([]Sink, len(d.sinks), len(d.sinks)+1)
	copy(sinks, d.sinks)
	d.sinks = append(sinks, s)
}

// RemoveSink deregisters a previously added sink, compared by identity.
func (d *Dispatcher) RemoveSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sinks := make([]Sink, 0, len(d.sinks))
	for _, existing := range d.sinks {
		if existing != s {
			sinks = append(sinks, existing)
		}
	}
	d.sinks = sinks
}

// Publish enqueues an event for delivery. It never blocks; an event that
// does not fit in the buffer is dropped and counted.
func (d *Dispatcher) Publish(ev Event) {
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded due to backpressure.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops the dispatcher after delivering everything already buffered.
// Publish calls after Close panic; the owning scheduler closes the
// dispatcher only after its loop has stopped publishing.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.ch)
		d.wg.Wait()
	})
}
