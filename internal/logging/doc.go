// Package logging assembles structured slog loggers used across quill.
//
// Console or JSON output goes to stderr so stdout stays free for command
// results, and a JSON copy of every record is appended to quill.log in the
// configured log directory. Context helpers tag lines with the sample id,
// pipeline stage, and the per-invocation correlation id.
package logging
