// Package dataset defines the sample records, the artifact layout under a
// dataset root, and the Store that persists dataset.json.
//
// Artifacts are the source of truth; dataset.json is a derived snapshot that
// the reconcile package rebuilds. Every write goes through WriteAtomic.
package dataset
