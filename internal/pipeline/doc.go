// Package pipeline drives samples through ingestion: recording, raw
// transcription, automated cleanup and creation of the empty manual-cleanup
// file a human edits afterwards.
//
// Each sample follows a strict state machine
//
//	idle -> recording -> recorded -> transcribing -> transcribed ->
//	cleaning_up -> auto_cleaned -> placeholder_created
//
// and a failed stage returns to the state it started from. Process detects
// the current state from the artifacts on disk and runs only the missing
// stages, so an interrupted run resumes where it stopped. Transient service
// failures are retried with exponential backoff; authentication and other
// permanent failures are not. Every transition is reported to registered
// observers and, for background Tasks, on the task's event channel.
package pipeline
