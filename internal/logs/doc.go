// Package logs reads the daemon log file for diagnostics commands.
//
// Reads are offset-based so a client can poll without re-reading the whole
// file: a negative offset returns the last Limit lines, and the returned
// offset resumes exactly where the previous read stopped. A positive Wait
// turns an empty read into a bounded poll, which is what follow mode in the
// CLI is built on.
package logs
