// Package config defines the grid configuration model and its HCL loader.
//
// A grid file declares the processors attached to a scheduler instance, the
// scheduler policy, the telemetry sinks, and optionally a workload of
// command tasks with dependencies and placement constraints. The translated
// Model is the single source of truth for the app package.
package config
