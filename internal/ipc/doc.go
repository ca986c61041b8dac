// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, the request/response DTOs, and the
// conversions between domain models and their wire representations. Blocking
// RPCs (buffered runs, event long-polls, log follows) ride on the same codec
// as quick lookups; the client decorates dials with a timeout so CLI commands
// fail fast when the daemon is offline.
//
// Add new endpoints here with per-method request/response structs to keep the
// protocol stable for older clients.
package ipc
