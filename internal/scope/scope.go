// Package scope models placement constraints: which processors a task may
// run on. Scopes are immutable values, and eligibility is a pure function of
// a scope and a registry snapshot, so the scheduler can re-evaluate it on
// every dispatch pass without side effects.
package scope

import (
	"fmt"

	"github.com/vk/taskgrid/internal/proc"
)

// Kind enumerates the scope variants, most to least specific.
type Kind int

const (
	// KindAny admits every processor. It is the zero value.
	KindAny Kind = iota
	// KindProcessorKind admits processors of one hardware kind, e.g. any GPU.
	KindProcessorKind
	// KindNode admits every processor on one named node.
	KindNode
	// KindExact admits exactly one processor.
	KindExact
)

// Scope is a placement constraint. The zero value is the unconstrained
// scope. Every task carries exactly one effective scope.
type Scope struct {
	kind     Kind
	procKind proc.Kind
	node     string
	procID   proc.ID
}

// Any returns the unconstrained scope.
func Any() Scope {
	return Scope{}
}

// OnKind returns a scope admitting any processor of the given kind.
func OnKind(k proc.Kind) Scope {
	return Scope{kind: KindProcessorKind, procKind: k}
}

// OnNode returns a scope admitting any processor on the named node.
func OnNode(node string) Scope {
	return Scope{kind: KindNode, node: node}
}

// On returns a scope admitting exactly the given processor.
func On(id proc.ID) Scope {
	return Scope{kind: KindExact, procID: id}
}

// Kind returns the scope variant.
func (s Scope) Kind() Kind {
	return s.kind
}

// Admits reports whether the scope allows the task to run on p.
func (s Scope) Admits(p proc.Processor) bool {
	switch s.kind {
	case KindAny:
		return true
	case KindProcessorKind:
		return p.Kind == s.procKind
	case KindNode:
		return p.Node == s.node
	case KindExact:
		return p.ID == s.procID
	default:
		return false
	}
}

// String renders the scope for logs and errors.
func (s Scope) String() string {
	switch s.kind {
	case KindAny:
		return "any"
	case KindProcessorKind:
		return fmt.Sprintf("kind(%s)", s.procKind)
	case KindNode:
		return fmt.Sprintf("node(%s)", s.node)
	case KindExact:
		return fmt.Sprintf("exact(%s)", s.procID)
	default:
		return "invalid"
	}
}

// Eligible filters a registry snapshot down to the processors the scope
// admits. It is pure and deterministic: the result order follows the input
// order.
func Eligible(s Scope, procs []proc.Processor) []proc.Processor {
	out := make([]proc.Processor, 0, len(procs))
	for _, p := range procs {
		if s.Admits(p) {
			out = append(out, p)
		}
	}
	return out
}
