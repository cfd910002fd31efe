// Package ffprobe provides a typed wrapper around ffprobe JSON output for
// audio files.
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Result helpers pick the first audio stream and parse its duration and
// sample rate.
package ffprobe
