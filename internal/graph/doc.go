// Package graph holds the task dependency graph: which task consumes which
// results, how many dependencies each task is still waiting on, and the
// transitive dependents that must be failed when a producer fails.
//
// Edges can only be added toward tasks that already exist, so the graph is
// acyclic by construction and never needs a cycle-detection pass.
package graph
