// Package llm provides an OpenRouter chat client for automated transcript
// cleanup.
//
// The cleanup prompt is sent as the system message and the raw transcript as
// the user message; the first non-empty choice is returned trimmed.
//
// # Errors
//
// Every error carries a services marker: 401/403 map to ErrAuth, 408/429/5xx
// and network timeouts to ErrTransient, other 4xx to ErrExternalTool. An
// empty completion is treated as transient. The client never retries on its
// own; the pipeline applies the configured backoff policy.
package llm
