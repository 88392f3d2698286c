package testutil

import (
	"context"
	"net"
	"sync"
	"testing"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/streamkit/internal/socks5"
)

// SOCKS5Proxy is a no-auth CONNECT-only proxy for tests.
type SOCKS5Proxy struct {
	ln net.Listener

	mu       sync.Mutex
	requests []string
}

// StartSOCKS5Proxy serves SOCKS5 on a loopback port until the test ends.
func StartSOCKS5Proxy(t *testing.T, ctx context.Context) *SOCKS5Proxy {
	t.Helper()

	ln := listenLoopback(t, ctx)

	p := &SOCKS5Proxy{ln: ln}
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Go(func() { p.handle(ctx, c) })
		}
	})
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	return p
}

func (p *SOCKS5Proxy) Port() uint16 { return ListenerPort(p.ln) }

// Requests returns the CONNECT targets seen so far, as host:port.
func (p *SOCKS5Proxy) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

func (p *SOCKS5Proxy) handle(ctx context.Context, c net.Conn) {
	defer c.Close()

	if err := socks5.ServerNegotiateNoAuth(c); err != nil {
		return
	}
	req, err := socks5.ServerReadRequest(c)
	if err != nil {
		return
	}
	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(c, req.Atyp)
		return
	}

	addr := req.Address()
	p.mu.Lock()
	p.requests = append(p.requests, addr)
	p.mu.Unlock()

	d := net.Dialer{}
	up, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		_ = socks5.WriteReply(c, txsocks5.RepHostUnreachable, txsocks5.ATYPIPv4)
		return
	}
	if err := socks5.WriteSuccessReply(c, up.LocalAddr()); err != nil {
		_ = up.Close()
		return
	}
	_ = CopyBidirectional(ctx, c, up)
}
