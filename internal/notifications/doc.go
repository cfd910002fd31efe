// Package notifications pushes pipeline milestones to ntfy.
//
// NewService returns an ntfy-backed Service when a topic is configured and a
// no-op otherwise, so callers never need to check whether notifications are
// enabled. Observer bridges pipeline events to the Service: a processed
// sample and a failed stage each produce one message.
package notifications
