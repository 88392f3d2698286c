// Package dialer opens outbound TCP sockets for the HTTP client.
//
// A Dialer connects either directly or through an upstream SOCKS5 proxy and
// applies the socket options from Config to every connection it returns.
// Dialers block and are meant to be run off the event loop goroutine.
package dialer
