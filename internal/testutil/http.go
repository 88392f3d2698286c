package testutil

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
)

// HTTPRequest is a request as seen by an HTTPServer.
type HTTPRequest struct {
	// Conn numbers the connection the request arrived on, from 1.
	Conn   int
	Method string
	Target string
	Proto  string
	Host   string
	Header http.Header
	Body   []byte
}

// HTTPHandler writes a raw response for req to w. It returns false to close
// the connection afterwards.
type HTTPHandler func(req *HTTPRequest, w io.Writer) bool

// HTTPServer is a loopback HTTP/1.x server whose responses are written byte
// for byte by a handler, so tests control framing exactly.
type HTTPServer struct {
	ln      net.Listener
	handler HTTPHandler

	mu       sync.Mutex
	conns    int
	requests []*HTTPRequest
}

func StartHTTPServer(t *testing.T, ctx context.Context, handler HTTPHandler) *HTTPServer {
	t.Helper()

	ln := listenLoopback(t, ctx)

	s := &HTTPServer{ln: ln, handler: handler}
	var (
		wg     sync.WaitGroup
		connMu sync.Mutex
		open   []net.Conn
	)
	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			connMu.Lock()
			open = append(open, c)
			connMu.Unlock()

			s.mu.Lock()
			s.conns++
			id := s.conns
			s.mu.Unlock()

			wg.Go(func() { s.serve(c, id) })
		}
	})
	t.Cleanup(func() {
		_ = ln.Close()
		connMu.Lock()
		for _, c := range open {
			_ = c.Close()
		}
		connMu.Unlock()
		wg.Wait()
	})
	return s
}

func (s *HTTPServer) Port() uint16 { return ListenerPort(s.ln) }

// Conns returns the number of connections accepted so far.
func (s *HTTPServer) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *HTTPServer) Requests() []*HTTPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*HTTPRequest(nil), s.requests...)
}

func (s *HTTPServer) serve(c net.Conn, id int) {
	defer c.Close()

	br := bufio.NewReader(c)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return
		}

		r := &HTTPRequest{
			Conn:   id,
			Method: req.Method,
			Target: req.RequestURI,
			Proto:  req.Proto,
			Host:   req.Host,
			Header: req.Header,
			Body:   body,
		}
		s.mu.Lock()
		s.requests = append(s.requests, r)
		s.mu.Unlock()

		if !s.handler(r, c) {
			return
		}
	}
}
