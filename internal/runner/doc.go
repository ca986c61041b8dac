// Package runner spawns and supervises worker script processes.
//
// Two execution modes are offered: buffered, which collects stdout and stderr
// wholesale for short maintenance scripts, and streaming, which decodes
// stdout line by line into protocol events while the worker runs. Workers are
// placed in their own process group so cancellation terminates the whole
// worker tree, and at most one invocation is tracked as cancellable at a
// time. Exit codes are authoritative: a worker that emitted an error event
// but exited zero still counts as successful.
package runner
