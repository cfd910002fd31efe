// Package hf uploads the local dataset folder to a Hugging Face dataset
// repository.
//
// A sync is a single commit. The client asks the Hub which files must go
// through LFS (preupload), pushes those blobs with the git-lfs batch API,
// then posts one NDJSON commit that carries small files inline and LFS files
// by oid. Blobs the Hub already holds are not uploaded again, so repeating a
// failed sync is safe.
//
// # Errors
//
// HTTP failures are classified with services.CheckResponse: 401/403 map to
// ErrAuth, 408/429/5xx and network timeouts to ErrTransient, other 4xx to
// ErrExternalTool. Local read failures carry ErrFileSystem. The client never
// retries on its own.
package hf
