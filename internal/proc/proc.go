package proc

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies a single processor within a scheduler instance.
type ID string

// NewID generates a random processor identifier. It is used when a processor
// is registered without an explicit identity.
func NewID() ID {
	return ID(uuid.New().String())
}

// Kind classifies the hardware a processor represents.
type Kind int

const (
	// KindThread is a CPU worker thread on some node.
	KindThread Kind = iota
	// KindGPU is a GPU device on some node.
	KindGPU
	// KindRemote is a worker attached over a transport layer.
	KindRemote
)

// String returns the canonical lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindThread:
		return "thread"
	case KindGPU:
		return "gpu"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "thread":
		return KindThread, nil
	case "gpu":
		return KindGPU, nil
	case "remote":
		return KindRemote, nil
	default:
		return 0, fmt.Errorf("unknown processor kind %q", s)
	}
}

// Processor is an addressable compute resource: a worker thread, a GPU
// device, or a remote worker. Its lifecycle is independent of any task.
type Processor struct {
	// ID is the unique identity of the processor.
	ID ID
	// Kind classifies the underlying hardware.
	Kind Kind
	// Node names the machine the processor lives on.
	Node string
	// Device is the device index for GPU processors. Zero otherwise.
	Device int
	// Slots is the number of tasks the processor runs concurrently.
	// A value of 1 means the processor is an exclusive resource.
	Slots int
}

// String renders the processor as "node/kind/id" for logs and errors.
func (p Processor) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Node, p.Kind, p.ID)
}
