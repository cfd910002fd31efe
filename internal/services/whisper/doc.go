// Package whisper uploads recorded answers to an OpenAI-compatible
// /audio/transcriptions endpoint and returns the plain-text transcript.
//
// Errors are classified with the services markers; the client performs a
// single request per call.
package whisper
