// Package compare measures how far a manual cleanup diverges from the
// automated one: word and character counts, their differences, and a
// line-level diff. It only reads sample content.
package compare
