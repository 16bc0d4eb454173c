// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: load a
// grid file, register its processors, spawn its tasks on the scheduler, and
// wait for the results. It is decoupled from any specific entrypoint like a
// CLI or server.
package app
