// Package logging builds the slog loggers used by the platen daemon and CLI.
//
// Two output formats are supported: a human-oriented console format that
// prefixes messages with their component and run subject, and a JSON format
// with stable ts/level/msg keys for log shippers. Helpers attach standardized
// field names, derive loggers from context identifiers, and throttle noisy
// worker progress output.
package logging
