// Package runloop is a single-goroutine I/O scheduler built on poll(2).
//
// Callers queue operations (bounded read, exact read, line read, accept,
// write, datagram receive and send) against a stream. Each descriptor has a
// FIFO read queue and a FIFO write queue; when the descriptor becomes ready
// the head operation is stepped until it reports that it must wait for more
// readiness or that it is done. Continuations run on the loop goroutine.
//
// Work that must not block the loop, such as name resolution and connect,
// is handed to Go, which runs it on another goroutine and posts the result
// back.
package runloop
