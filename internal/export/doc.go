// Package export turns complete samples into input/output training pairs,
// written as an indented JSON array or as JSON Lines.
package export
