// Package httpclient is an HTTP/1.0 and HTTP/1.1 client driven by a
// runloop.Loop.
//
// A Client runs one request at a time. It keeps the connection of a
// keep-alive response and reuses it when the next request targets the same
// scheme, host, port and path. Redirects, chunked bodies, request bodies of
// a declared length and SOCKS5 tunnelling through a dialer.Dialer are
// supported. TLS is supplied by the caller through a TLSProvider.
package httpclient
