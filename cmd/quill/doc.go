// Package main hosts the quill CLI entrypoint and command graph.
//
// The Cobra command tree covers the whole corpus workflow: recording answers,
// running transcription and cleanup, reconciling dataset.json, validating and
// exporting training pairs, plus inspection commands (summary, compare,
// history, doctor). Configuration, logging and the per-run correlation id are
// resolved once in commandContext so subcommands only wire internal packages
// together.
package main
