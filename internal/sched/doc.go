// Package sched contains the scheduler core: a serialized decision loop
// that admits spawned tasks into the dependency graph, assigns ready tasks
// to eligible idle processors, and reacts to completion, failure,
// cancellation, and processor membership events.
package sched
