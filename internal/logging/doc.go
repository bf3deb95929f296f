// Package logging provides slog-based logging for searchapi.
//
// By default the CLI logs warnings and errors as text to stderr. With --debug,
// or when a log file is configured, JSON logs are written to a size-rotated
// file under ~/.searchapi/logs/ so long indexing runs can be inspected later.
package logging
