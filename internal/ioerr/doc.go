// Package ioerr defines the error kinds shared by the stream, socket and
// HTTP client packages.
//
// Every failure that originates from I/O is reported as an *Error carrying a
// Kind, the underlying platform error (usually a unix.Errno) and whatever
// context the failing operation had at hand. Callers classify with errors.Is
// against either the Kind or the errno.
package ioerr
