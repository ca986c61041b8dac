// Package pipeline validates and executes multi-stage processing runs.
//
// A pipeline is an ordered list of stages, each naming a project and the
// parameter values for its worker. Validation checks referential integrity
// against the project registry before anything spawns: stages must be
// non-empty, every plugin id must resolve, pipeline-orchestrator projects
// cannot appear as stages, and supplied parameters must match the project's
// declared schema. The first violation wins and is reported as a single
// human-readable reason.
//
// The Executor runs validated stages strictly in order. Stage 0 reads from
// the config's input directory; every stage writes into a fresh uniquely
// named directory under the work root, and that directory becomes the next
// stage's input. A stage that exits nonzero, fails to spawn, or is cancelled
// stops the run immediately; completed stages are never rolled back. Decoded
// worker events are forwarded to the caller tagged with the stage index.
//
// Intermediate stage directories are purged after a fully successful run
// unless keep_stage_dirs is set; failed and cancelled runs keep everything
// for diagnostics. The final stage's output directory is always kept.
package pipeline
