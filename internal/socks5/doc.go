// Package socks5 provides the SOCKS5 handshake used to tunnel TCP
// connections through a proxy.
//
// The client side speaks only the unauthenticated CONNECT subset and always
// sends the destination as a domain name. Requests are encoded with
// github.com/txthinking/socks5; replies are parsed field by field so the
// status can be checked before the variable-length bound address is
// consumed. Non-zero reply statuses map onto errno values so callers can
// classify failures with errors.Is.
//
// The server helpers implement just enough of the other side for tests and
// local tooling.
package socks5
