package httpclient

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/die-net/streamkit/internal/dialer"
	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/runloop"
	"github.com/die-net/streamkit/internal/socket"
)

// Conn is a connection a request can be sent over. *socket.TCPSocket
// satisfies it, as do the connections returned by a TLSProvider.
type Conn interface {
	runloop.LineReader
	Write(p []byte) (int, error)
	AtEndOfStream() bool
	IsOpen() bool
	Close() error
}

// RequestFailedError reports a final response outside 2xx. It matches
// ioerr.RequestFailed.
type RequestFailedError struct {
	Request  *Request
	Response *Response
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("%s: %s %s: status %d", ioerr.RequestFailed, e.Request.method(), e.Request.URL, e.Response.StatusCode)
}

func (e *RequestFailedError) Is(target error) bool {
	return target == ioerr.RequestFailed
}

// Client performs one request at a time on Loop. All methods must be
// called from the loop goroutine, and Perform must not be called from
// inside a loop callback.
type Client struct {
	Loop *runloop.Loop

	// Dialer opens connections. Nil means a direct dialer with default
	// options.
	Dialer dialer.Dialer

	TLS       TLSProvider
	TLSConfig *TLSConfig

	// Observer receives PerformAsync outcomes. Its optional interfaces are
	// consulted for Perform too.
	Observer Observer

	// InsecureRedirectsAllowed permits following a redirect from https to
	// http.
	InsecureRedirectsAllowed bool

	// UserAgent is sent when the request has none. Empty means
	// DefaultUserAgent.
	UserAgent string

	Verbose bool

	inFlight bool
	current  *handler

	conn Conn
	last *exchange
}

// exchange is what is remembered of a keep-alive request for reuse.
type exchange struct {
	scheme string
	host   string
	port   uint16
	path   string
	head   bool
	resp   *Response
}

func New(loop *runloop.Loop) *Client {
	return &Client{Loop: loop}
}

// InFlight reports whether a request is in progress.
func (c *Client) InFlight() bool { return c.inFlight }

// PerformAsync starts req and returns. Argument errors are returned
// directly; everything after that is reported to c.Observer. redirects is
// how many redirects may be followed.
func (c *Client) PerformAsync(req *Request, redirects int) error {
	if c.Observer == nil {
		return ioerr.Errorf(ioerr.InvalidArgument, "no observer")
	}
	return c.start(req, redirects, c.Observer, c.Observer)
}

// Perform runs req to completion, driving c.Loop until it finishes or ctx
// ends. When ctx ends first the request is aborted and ctx.Err() returned.
func (c *Client) Perform(ctx context.Context, req *Request, redirects int) (*Response, error) {
	s := &syncObserver{}
	if err := c.start(req, redirects, s, c.Observer); err != nil {
		return nil, err
	}
	if err := c.Loop.RunUntil(ctx, func() bool { return s.done }); err != nil {
		c.abort()
		return nil, err
	}
	return s.resp, s.err
}

// Close drops any connection kept for reuse and aborts a request in flight
// without notifying its observer.
func (c *Client) Close() error {
	c.abort()
	c.dropConn()
	return nil
}

func (c *Client) start(req *Request, redirects int, obs, hooks Observer) error {
	if c.inFlight {
		return ioerr.Errorf(ioerr.AlreadyConnected, "request in flight")
	}
	if c.Loop == nil {
		return ioerr.Errorf(ioerr.InvalidArgument, "client has no loop")
	}
	h, err := newHandler(c, req, redirects, obs, hooks)
	if err != nil {
		return err
	}
	c.inFlight = true
	c.current = h
	c.Loop.Post(h.begin)
	return nil
}

func (c *Client) abort() {
	if h := c.current; h != nil {
		h.teardown()
	}
}

func (c *Client) dialer() dialer.Dialer {
	if c.Dialer == nil {
		return dialer.NewDirectDialer(dialer.Config{})
	}
	return c.Dialer
}

// reusable reports whether the kept connection can carry h.
func (c *Client) reusable(h *handler) bool {
	l := c.last
	if l == nil || c.conn == nil || !c.conn.IsOpen() {
		return false
	}
	return l.scheme == h.scheme && strings.EqualFold(l.host, h.host) && l.port == h.port && l.path == h.path
}

// keep remembers conn for the next request.
func (c *Client) keep(h *handler, resp *Response) {
	c.conn = h.conn
	c.last = &exchange{
		scheme: h.scheme,
		host:   h.host,
		port:   h.port,
		path:   h.path,
		head:   h.req.method() == "HEAD",
		resp:   resp,
	}
}

// release forgets the kept connection without closing it.
func (c *Client) release() {
	c.conn = nil
	c.last = nil
}

func (c *Client) dropConn() {
	if conn := c.conn; conn != nil {
		c.Loop.Cancel(conn)
		if conn.IsOpen() {
			_ = conn.Close()
		}
	}
	c.release()
}

func (c *Client) logf(format string, args ...any) {
	if c.Verbose {
		log.Printf("httpclient: "+format, args...)
	}
}

var _ Conn = (*socket.TCPSocket)(nil)
