package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/socket"
)

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateSending
	stateSendingBody
	stateAwaitingStatus
	stateAwaitingHeaders
	stateRedirecting
	stateCompleted
	stateFailed
)

var stateNames = [...]string{
	stateIdle:            "idle",
	stateConnecting:      "connecting",
	stateSending:         "sending",
	stateSendingBody:     "sending body",
	stateAwaitingStatus:  "awaiting status",
	stateAwaitingHeaders: "awaiting headers",
	stateRedirecting:     "redirecting",
	stateCompleted:       "completed",
	stateFailed:          "failed",
}

func (s state) String() string { return stateNames[s] }

// drainBufferSize bounds each read that discards an unread keep-alive body.
const drainBufferSize = 512

// handler is one request's progress through the exchange. Every method runs
// on the loop goroutine.
type handler struct {
	c *Client
	// obs gets the outcome, hooks the optional callbacks.
	obs   Observer
	hooks Observer

	req       *Request
	redirects int
	state     state

	scheme string
	host   string
	port   uint16
	path   string

	wire          []byte
	contentLength int64
	sentBody      []byte

	conn       Conn
	reused     bool
	retried    bool
	cancelDial context.CancelFunc

	status int
	proto  string
	header Header
}

func newHandler(c *Client, req *Request, redirects int, obs, hooks Observer) (*handler, error) {
	if req == nil || req.URL == nil || !req.URL.IsAbs() {
		return nil, ioerr.Errorf(ioerr.InvalidArgument, "request needs an absolute url")
	}
	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ioerr.Errorf(ioerr.UnsupportedProtocol, "scheme %q", scheme)
	}
	host, port, err := req.target()
	if err != nil {
		return nil, err
	}
	wire, contentLength, err := req.serialize(c.UserAgent)
	if err != nil {
		return nil, err
	}
	return &handler{
		c:             c,
		obs:           obs,
		hooks:         hooks,
		req:           req,
		redirects:     redirects,
		scheme:        scheme,
		host:          host,
		port:          port,
		path:          req.URL.EscapedPath(),
		wire:          wire,
		contentLength: contentLength,
	}, nil
}

func (h *handler) begin() {
	if h.state != stateIdle {
		return
	}
	c := h.c
	if !c.reusable(h) {
		c.dropConn()
		h.connect()
		return
	}

	if last := c.last; !last.head && last.resp != nil && !last.resp.eof {
		h.drain(last.resp)
		return
	}
	h.reuse()
}

// drain discards the rest of the previous response so its connection can
// be reused. If the body turns out to be unreadable a new connection is
// opened instead.
func (h *handler) drain(resp *Response) {
	h.state = stateConnecting
	h.c.logf("draining previous response from %s", hostPort(h.host, h.port))
	h.c.Loop.Read(&responseReader{r: resp}, make([]byte, drainBufferSize), func(_ int, err error) bool {
		if h.state != stateConnecting {
			return false
		}
		if err == nil {
			return true
		}
		if errors.Is(err, io.EOF) && resp.eof {
			h.reuse()
			return false
		}
		h.c.dropConn()
		h.connect()
		return false
	})
}

func (h *handler) reuse() {
	h.c.logf("reusing connection to %s", hostPort(h.host, h.port))
	h.reused = true
	h.conn = h.c.conn
	h.send()
}

func (h *handler) connect() {
	h.state = stateConnecting
	c := h.c

	https := h.scheme == "https"
	provider := c.TLS
	if https && provider == nil {
		h.fail(&ioerr.Error{Kind: ioerr.UnsupportedProtocol, Host: h.host, Port: h.port, Detail: "https without a TLS provider"})
		return
	}

	d := c.dialer()
	host, port := h.host, h.port
	tlsConfig := c.TLSConfig.forHost(h.host)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancelDial = cancel

	var (
		sock *socket.TCPSocket
		conn Conn
	)
	c.logf("connecting to %s", hostPort(host, port))
	c.Loop.Go(func() error {
		s, err := d.Dial(ctx, host, port)
		if err != nil {
			return err
		}
		sock, conn = s, s
		if https {
			tc, err := provider.Handshake(ctx, s, tlsConfig)
			if err != nil {
				_ = s.Close()
				conn = nil
				return err
			}
			conn = tc
		}
		return nil
	}, func(err error) {
		cancel()
		if h.state != stateConnecting {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			h.fail(err)
			return
		}
		h.conn = conn
		c.conn = conn
		if so, ok := h.hooks.(SocketObserver); ok {
			so.SocketCreated(c, h.req, sock)
		}
		if h.state == stateConnecting {
			h.send()
		}
	})
}

func (h *handler) send() {
	h.state = stateSending
	h.c.logf("%s %s", h.req.method(), h.req.URL)
	h.c.Loop.Write(h.conn, h.wire, func(_ int, err error) []byte {
		if h.state != stateSending {
			return nil
		}
		if err != nil {
			h.retryOrFail(err)
			return nil
		}
		if h.contentLength > 0 {
			h.startBody()
		} else {
			h.awaitStatus()
		}
		return nil
	})
}

func (h *handler) startBody() {
	h.state = stateSendingBody
	body := newRequestBody(h, h.contentLength)

	if h.req.Body != nil {
		if _, err := io.Copy(body, h.req.Body); err != nil {
			body.closed = true
			h.fail(err)
			return
		}
		_ = body.Close()
		return
	}
	if bw, ok := h.hooks.(BodyWriter); ok {
		bw.WantsRequestBody(h.c, h.req, body)
		return
	}
	body.closed = true
	h.fail(&ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "request declares a Content-Length but has no body"})
}

func (h *handler) sendBody(buf []byte) {
	if h.state != stateSendingBody {
		return
	}
	h.sentBody = buf
	h.c.Loop.Write(h.conn, buf, func(_ int, err error) []byte {
		if h.state != stateSendingBody {
			return nil
		}
		if err != nil {
			h.fail(err)
			return nil
		}
		h.awaitStatus()
		return nil
	})
}

func (h *handler) awaitStatus() {
	h.state = stateAwaitingStatus
	h.header = Header{}
	h.c.Loop.ReadLine(h.conn, func(line string, err error) bool {
		switch h.state {
		case stateAwaitingStatus:
			if err != nil {
				h.retryOrFail(err)
				return false
			}
			if err := h.parseStatus(line); err != nil {
				h.fail(err)
				return false
			}
			h.state = stateAwaitingHeaders
			return true

		case stateAwaitingHeaders:
			if errors.Is(err, io.EOF) {
				h.fail(&ioerr.Error{Kind: ioerr.InvalidServerReply, Stream: h.conn, Detail: "connection closed in header block"})
				return false
			}
			if err != nil {
				h.fail(err)
				return false
			}
			if line == "" {
				h.headersDone()
				return false
			}
			if err := h.parseHeader(line); err != nil {
				h.fail(err)
				return false
			}
			return true
		}
		return false
	})
}

// parseStatus accepts "HTTP/<major>.<minor> <3-digit status>[ reason]".
func (h *handler) parseStatus(line string) error {
	bad := &ioerr.Error{Kind: ioerr.InvalidServerReply, Stream: h.conn, Detail: "status line " + strconv.Quote(line)}
	if len(line) < 12 || !strings.HasPrefix(line, "HTTP/") || line[8] != ' ' || len(line) > 12 && line[12] != ' ' {
		return bad
	}
	version := line[5:8]
	if !isDigit(version[0]) || version[1] != '.' || !isDigit(version[2]) {
		return bad
	}
	code := line[9:12]
	for i := 0; i < len(code); i++ {
		if !isDigit(code[i]) {
			return bad
		}
	}
	if version != "1.0" && version != "1.1" {
		return &ioerr.Error{Kind: ioerr.UnsupportedVersion, Stream: h.conn, Detail: "HTTP/" + version}
	}
	h.proto = version
	h.status, _ = strconv.Atoi(code)
	return nil
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func (h *handler) parseHeader(line string) error {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return &ioerr.Error{Kind: ioerr.InvalidServerReply, Stream: h.conn, Detail: "header line " + strconv.Quote(line)}
	}
	h.header.add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	return nil
}

func (h *handler) headersDone() {
	if ho, ok := h.hooks.(HeadersObserver); ok {
		ho.HeadersReceived(h.c, h.req, h.status, h.header)
	}
	if h.state == stateAwaitingHeaders {
		h.c.Loop.Post(h.finish)
	}
}

// finish builds the response and decides between redirect, failure and
// completion.
func (h *handler) finish() {
	if h.state != stateAwaitingHeaders {
		return
	}
	c := h.c
	resp, err := newResponse(h.req, h.status, h.proto, h.header, h.conn)
	if err != nil {
		h.fail(err)
		return
	}
	if resp.keepAlive {
		c.keep(h, resp)
	} else {
		c.release()
	}

	if target, ok := h.redirectTarget(resp); ok {
		h.redirect(resp, target)
		return
	}
	if resp.StatusCode/100 != 2 {
		h.fail(&RequestFailedError{Request: h.req, Response: resp})
		return
	}

	h.state = stateCompleted
	h.done()
	c.logf("%s %s: %d", h.req.method(), h.req.URL, resp.StatusCode)
	h.obs.RequestCompleted(c, h.req, resp)
}

// redirectTarget returns the location to follow, after the policy has
// agreed.
func (h *handler) redirectTarget(resp *Response) (*url.URL, bool) {
	if h.redirects <= 0 {
		return nil, false
	}
	switch resp.StatusCode {
	case 301, 302, 303, 307:
	default:
		return nil, false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	target, err := h.req.URL.Parse(loc)
	if err != nil {
		h.c.logf("ignoring bad redirect location %q: %v", loc, err)
		return nil, false
	}
	if !h.c.InsecureRedirectsAllowed && h.scheme != "http" && target.Scheme != "https" {
		h.c.logf("refusing insecure redirect to %s", target)
		return nil, false
	}

	if rp, ok := h.hooks.(RedirectPolicy); ok {
		return target, rp.ShouldFollowRedirect(h.c, h.req, resp, target, resp.StatusCode)
	}
	return target, DefaultShouldFollow(h.req.method(), resp.StatusCode)
}

func (h *handler) redirect(resp *Response, target *url.URL) {
	h.state = stateRedirecting
	c := h.c

	next := h.req.clone()
	next.URL = target
	if resp.StatusCode == 303 {
		next.Method = "GET"
		next.Body = nil
		for k := range next.Header {
			lk := strings.ToLower(k)
			if strings.HasPrefix(lk, "content-") || strings.HasPrefix(lk, "transfer-") {
				delete(next.Header, k)
			}
		}
	} else if h.sentBody != nil {
		next.Body = bytes.NewReader(h.sentBody)
	}
	if !strings.EqualFold(target.Hostname(), h.req.URL.Hostname()) {
		next.Header.Del("Host")
		next.RemoteAddress = ""
	}
	if !resp.keepAlive {
		_ = resp.Close()
	}

	c.logf("following %d from %s to %s", resp.StatusCode, h.req.URL, target)
	h.done()
	if err := c.start(next, h.redirects-1, h.obs, h.hooks); err != nil {
		h.state = stateFailed
		c.dropConn()
		h.obs.RequestFailed(c, next, err)
	}
}

func (h *handler) retryable(err error) bool {
	if !h.reused || h.retried || h.contentLength > 0 {
		return false
	}
	switch ioerr.Errno(err) {
	case unix.ECONNRESET, unix.EPIPE:
		return true
	}
	return errors.Is(err, io.EOF)
}

// retryOrFail reconnects once when a reused connection turns out to have
// been closed by the server.
func (h *handler) retryOrFail(err error) {
	if !h.retryable(err) {
		if errors.Is(err, io.EOF) {
			err = &ioerr.Error{Kind: ioerr.InvalidServerReply, Stream: h.conn, Detail: "connection closed before status line", Err: err}
		}
		h.fail(err)
		return
	}
	h.c.logf("reused connection to %s failed, reconnecting: %v", hostPort(h.host, h.port), err)
	h.retried = true
	h.reused = false
	h.conn = nil
	h.c.dropConn()
	h.connect()
}

// teardown closes the connection and clears the in-flight guard without
// notifying anyone.
func (h *handler) teardown() {
	if h.state == stateCompleted || h.state == stateFailed {
		return
	}
	h.state = stateFailed
	if h.cancelDial != nil {
		h.cancelDial()
	}
	c := h.c
	if h.conn != nil && h.conn != c.conn {
		c.Loop.Cancel(h.conn)
		if h.conn.IsOpen() {
			_ = h.conn.Close()
		}
	}
	c.dropConn()
	h.done()
}

func (h *handler) fail(err error) {
	if h.state == stateCompleted || h.state == stateFailed {
		return
	}
	h.teardown()
	h.c.logf("%s %s failed: %v", h.req.method(), h.req.URL, err)
	h.obs.RequestFailed(h.c, h.req, err)
}

// done clears the in-flight guard.
func (h *handler) done() {
	if h.c.current == h {
		h.c.current = nil
	}
	h.c.inFlight = false
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
