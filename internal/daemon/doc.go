// Package daemon coordinates the long-running platen process.
//
// It ties configuration, the project registry, the run orchestrator, and the
// history store into a single lifecycle with flock-based locking to prevent
// multiple instances. Startup resets runs abandoned by a previous process,
// loads the registry, reports missing external dependencies, and optionally
// watches the project roots so stale registry state is visible in status
// output. The daemon exposes thin pass-throughs that the IPC layer serves to
// the CLI.
//
// Keep lifecycle and coordination logic here; run semantics live in the
// orchestrator and its packages.
package daemon
