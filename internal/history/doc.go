// Package history persists run records for worker script and pipeline
// executions in a local SQLite database.
//
// Each run the orchestrator starts becomes one row: its kind, display label,
// live progress, and the terminal status with exit code and output location.
// The store is the durable record behind `platen runs` and survives daemon
// restarts; runs left in a non-terminal state by a crash are folded to failed
// on startup.
package history
