package proc

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the thread-safe catalogue of processors currently attached to
// a scheduler instance. Processors are registered once at startup and may
// join or leave at any time afterwards; the transport layer is responsible
// for detecting liveness and calling Register/Deregister.
type Registry struct {
	mu    sync.RWMutex
	procs map[ID]Processor
}

// NewRegistry returns an initialized, empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[ID]Processor)}
}

// Register adds a processor to the registry. A processor with an empty ID is
// assigned a generated one, and a Slots value below 1 is normalized to 1.
// The stored descriptor is returned. Registering an ID that already exists
// is an error.
func (r *Registry) Register(p Processor) (Processor, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Slots < 1 {
		p.Slots = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.procs[p.ID]; ok {
		return Processor{}, fmt.Errorf("processor already registered: %s", p.ID)
	}
	r.procs[p.ID] = p
	return p, nil
}

// Deregister removes a processor and returns its descriptor. The second
// return value reports whether the processor was present.
func (r *Registry) Deregister(id ID) (Processor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[id]
	if ok {
		delete(r.procs, id)
	}
	return p, ok
}

// Get looks up a processor by ID.
func (r *Registry) Get(id ID) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.procs[id]
	return p, ok
}

// List returns a snapshot of all registered processors, sorted by ID so the
// result is deterministic for a given registry state.
func (r *Registry) List() []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Processor, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered processors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}
