// Package prompts loads the system prompt used for automated transcript
// cleanup and derives its version tag.
package prompts
