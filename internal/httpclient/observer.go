package httpclient

import (
	"net/url"

	"github.com/die-net/streamkit/internal/socket"
)

// Observer receives the outcome of every request started with
// PerformAsync. Exactly one of its methods is called per request, after
// redirects have been followed.
type Observer interface {
	RequestCompleted(c *Client, req *Request, resp *Response)
	RequestFailed(c *Client, req *Request, err error)
}

// SocketObserver is told about every new connection, after any TLS
// handshake. sock is the underlying TCP socket.
type SocketObserver interface {
	SocketCreated(c *Client, req *Request, sock *socket.TCPSocket)
}

// BodyWriter supplies request bodies for requests that declare a
// Content-Length and carry no Request.Body. The implementation writes to
// body and closes it, possibly later from another loop callback.
type BodyWriter interface {
	WantsRequestBody(c *Client, req *Request, body *RequestBody)
}

// HeadersObserver sees the status and header of every response, including
// redirects, before the response is acted on.
type HeadersObserver interface {
	HeadersReceived(c *Client, req *Request, status int, header Header)
}

// RedirectPolicy decides whether a redirect to target is followed. Without
// one DefaultShouldFollow is used.
type RedirectPolicy interface {
	ShouldFollowRedirect(c *Client, req *Request, resp *Response, target *url.URL, status int) bool
}

// DefaultShouldFollow follows every redirect of a GET or HEAD, and every
// 303.
func DefaultShouldFollow(method string, status int) bool {
	return method == "GET" || method == "HEAD" || status == 303
}

// syncObserver captures the outcome for Perform.
type syncObserver struct {
	resp *Response
	err  error
	done bool
}

func (s *syncObserver) RequestCompleted(_ *Client, _ *Request, resp *Response) {
	s.resp, s.done = resp, true
}

func (s *syncObserver) RequestFailed(_ *Client, _ *Request, err error) {
	s.err, s.done = err, true
}
