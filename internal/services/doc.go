// Package services defines shared utilities consumed by the ingestion
// pipeline, the reconciliation engine, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sample IDs, stage names, and correlation
//     identifiers for logging and the run journal.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified as transient (retry), authentication (fatal), filesystem,
//     validation, or empty-export problems.
//   - ExitCode, which turns those markers into the distinguishing exit codes
//     the CLI returns.
//
// Integrations under this directory (whisper, llm) tag every error they
// return with one of these markers; the pipeline relies on that to decide
// whether to retry.
package services
