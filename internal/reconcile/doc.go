// Package reconcile rebuilds the dataset store from the artifact filesystem.
//
// The filesystem is authoritative: every build re-derives files, audio
// metadata, text statistics, content and status for each question in
// questions.json, keeping only model provenance and metadata.created from
// the prior snapshot. Reconciliation never writes into the artifact
// directories. Running it twice without filesystem changes produces a
// byte-identical dataset.json.
package reconcile
