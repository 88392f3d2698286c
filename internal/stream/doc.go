// Package stream implements a buffered byte stream over a pluggable
// low-level source.
//
// A Stream keeps a read-ahead buffer for bytes fetched from the source but
// not yet handed to the caller, and an optional write buffer. Small reads are
// widened to MinReadSize so that line-oriented and fixed-width protocol
// parsing does not cost one system call per field. Read-ahead is always
// drained before the source is read again.
package stream
