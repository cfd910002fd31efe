// Package preflight provides the readiness checks behind `quill doctor`:
// external binaries, dataset and state directories, the question registry,
// capture devices and the transcription and cleanup endpoints.
//
// Checks never fail the caller; each returns a Result describing what was
// found so the CLI can print every problem at once.
package preflight
