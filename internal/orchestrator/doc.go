// Package orchestrator is the API surface the daemon and CLI drive: project
// listing and reload, single-script runs in buffered or streaming form,
// pipeline validation and execution, and cancellation.
//
// One run is active at a time per orchestrator; starting a second returns
// ErrBusy. Every run is recorded in the history store with throttled progress
// updates, and streaming runs additionally feed an in-memory event journal
// that clients poll with RunEvents to render ordered progress after the fact.
// Cancellation targets the whole active run: the per-run context stops the
// pipeline between stages and the process-group signal stops the stage that
// is currently executing.
package orchestrator
