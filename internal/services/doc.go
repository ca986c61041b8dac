// Package services defines the shared error taxonomy and context helpers used
// across platen components.
//
// Errors raised while orchestrating worker processes are wrapped with a
// sentinel marker (validation, spawn, external tool, busy, cancelled, and so
// on) plus component and operation detail, so callers can both branch with
// errors.Is and surface a readable message. Context helpers carry run, plugin,
// script, and stage identifiers through call chains for logging.
package services
