// Package journal keeps a SQLite history of pipeline events and dataset
// builds. It backs `quill history` and is never consulted for dataset
// state: the artifacts on disk remain the only source of truth.
package journal
