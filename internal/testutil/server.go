package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// listenLoopback opens a TCP listener on an ephemeral loopback port that is
// closed when the test ends.
func listenLoopback(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// ListenerPort returns the TCP port of ln.
func ListenerPort(ln net.Listener) uint16 {
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

// StartSingleAcceptServer runs handler on the first accepted connection. The
// returned function closes the listener and waits for handler to return.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	ln := listenLoopback(t, ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}()

	var once sync.Once
	wait := func() {
		once.Do(func() {
			_ = ln.Close()
			<-done
		})
	}
	t.Cleanup(wait)
	return ln, wait
}
