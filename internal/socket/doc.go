// Package socket wraps OS socket descriptors as buffered streams.
//
// TCPSocket and UDPSocket own a Handle obtained from golang.org/x/sys/unix.
// TCPSocket embeds a *stream.Stream so that protocol code gets read-ahead,
// line reading and numeric codecs for free; it can optionally tunnel its
// connection through a SOCKS5 proxy. Name resolution goes through the Go
// resolver and yields ordered Address candidates.
package socket
