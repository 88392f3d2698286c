package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/socks5"
	"github.com/die-net/streamkit/internal/stream"
	"github.com/die-net/streamkit/internal/testutil"
)

func connect(t *testing.T, ctx context.Context, port uint16) *TCPSocket {
	t.Helper()

	s := NewTCPSocket()
	s.SOCKS5Host = ""
	if err := s.Connect(ctx, "127.0.0.1", port); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTCPConnectEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln := testutil.StartEchoTCPServer(t, ctx)
	s := connect(t, ctx, testutil.ListenerPort(ln))

	testutil.AssertEcho(t, s, s, []byte("hello over a raw socket"))

	remote, err := s.RemoteAddress()
	if err != nil {
		t.Fatal(err)
	}
	if want := ln.Addr().String(); remote.String() != want {
		t.Fatalf("remote %s, want %s", remote, want)
	}
	local, err := s.LocalAddress()
	if err != nil {
		t.Fatal(err)
	}
	if !local.IP().IsLoopback() || local.Port() == 0 {
		t.Fatalf("local %s", local)
	}

	if err := s.Connect(ctx, "127.0.0.1", 1); !errors.Is(err, ioerr.AlreadyConnected) {
		t.Fatalf("second connect: %v", err)
	}
}

func TestTCPConnectRefused(t *testing.T) {
	ctx := context.Background()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := testutil.ListenerPort(ln)
	_ = ln.Close()

	s := NewTCPSocket()
	s.SOCKS5Host = ""
	err = s.Connect(ctx, "127.0.0.1", port)
	if !errors.Is(err, ioerr.ConnectionFailed) || !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatalf("got %v", err)
	}
	if s.IsOpen() {
		t.Fatal("socket open after failed connect")
	}
}

func TestTCPOptions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln := testutil.StartEchoTCPServer(t, ctx)
	s := connect(t, ctx, testutil.ListenerPort(ln))

	for _, on := range []bool{true, false} {
		if err := s.SetKeepAliveEnabled(on); err != nil {
			t.Fatal(err)
		}
		if got, err := s.KeepAliveEnabled(); err != nil || got != on {
			t.Fatalf("keepalive %v, %v", got, err)
		}
		if err := s.SetNoDelayEnabled(on); err != nil {
			t.Fatal(err)
		}
		if got, err := s.NoDelayEnabled(); err != nil || got != on {
			t.Fatalf("nodelay %v, %v", got, err)
		}
	}

	closed := NewTCPSocket()
	if _, err := closed.NoDelayEnabled(); !errors.Is(err, ioerr.NotOpen) {
		t.Fatalf("closed socket: %v", err)
	}
}

func TestTCPListenAccept(t *testing.T) {
	ctx := context.Background()

	ln := NewTCPSocket()
	ln.SOCKS5Host = ""
	port, err := ln.Bind(ctx, "127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if port == 0 {
		t.Fatal("no port chosen")
	}
	if _, err := ln.Bind(ctx, "127.0.0.1", 0); !errors.Is(err, ioerr.AlreadyConnected) {
		t.Fatalf("second bind: %v", err)
	}
	if err := ln.Listen(4); err != nil {
		t.Fatal(err)
	}
	if !ln.Listening() {
		t.Fatal("not listening")
	}
	if _, err := ln.RemoteAddress(); !errors.Is(err, ioerr.InvalidArgument) {
		t.Fatalf("listener peer: %v", err)
	}

	c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	s, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	peer, err := s.RemoteAddress()
	if err != nil {
		t.Fatal(err)
	}
	if peer.String() != c.LocalAddr().String() {
		t.Fatalf("peer %s, want %s", peer, c.LocalAddr())
	}

	if _, err := c.Write([]byte("line one\r\nline two\n")); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"line one", "line two"} {
		line, err := s.ReadLine()
		if err != nil {
			t.Fatal(err)
		}
		if line != want {
			t.Fatalf("line %q, want %q", line, want)
		}
	}

	_ = c.Close()
	buf := make([]byte, 16)
	if _, err := s.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("read after peer close: %v", err)
	}
	if !s.AtEndOfStream() {
		t.Fatal("not at end of stream")
	}
}

func TestTCPNonBlocking(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln := testutil.StartEchoTCPServer(t, ctx)
	s := connect(t, ctx, testutil.ListenerPort(ln))

	if err := s.SetBlocking(false); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	if _, err := s.Read(buf); !errors.Is(err, stream.ErrWouldBlock) {
		t.Fatalf("empty read: %v", err)
	}
	if _, err := s.ReadLine(); !errors.Is(err, stream.ErrWouldBlock) {
		t.Fatalf("empty line read: %v", err)
	}

	if _, err := s.WriteString("ping\n"); err != nil {
		t.Fatal(err)
	}
	if err := WaitReadable(s.Fd()); err != nil {
		t.Fatal(err)
	}
	line, err := s.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if line != "ping" {
		t.Fatalf("line %q", line)
	}
}

func TestTCPCloseTwice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln := testutil.StartEchoTCPServer(t, ctx)
	s := NewTCPSocket()
	s.SOCKS5Host = ""
	if err := s.Connect(ctx, "127.0.0.1", testutil.ListenerPort(ln)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Fd() != -1 {
		t.Fatalf("fd %d after close", s.Fd())
	}
	if err := s.Close(); !errors.Is(err, ioerr.NotOpen) {
		t.Fatalf("second close: %v", err)
	}
}

func TestSOCKS5Tunnel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := testutil.StartEchoTCPServer(t, ctx)
	proxy := testutil.StartSOCKS5Proxy(t, ctx)

	s := NewTCPSocket()
	s.SOCKS5Host = "127.0.0.1"
	s.SOCKS5Port = proxy.Port()
	if err := s.Connect(ctx, "localhost", testutil.ListenerPort(echo)); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	testutil.AssertEcho(t, s, s, []byte("through the proxy"))

	want := fmt.Sprintf("localhost:%d", testutil.ListenerPort(echo))
	if got := proxy.Requests(); len(got) != 1 || got[0] != want {
		t.Fatalf("proxy saw %v, want [%s]", got, want)
	}
	if _, err := s.Bind(ctx, "127.0.0.1", 0); !errors.Is(err, ioerr.AlreadyConnected) {
		t.Fatalf("bind on connected socket: %v", err)
	}
}

func TestSOCKS5ConnectionRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if err := socks5.ServerNegotiateNoAuth(c); err != nil {
			return
		}
		req, err := socks5.ServerReadRequest(c)
		if err != nil {
			return
		}
		socks5.WriteConnectionRefusedReply(c, req.Atyp)
	})

	s := NewTCPSocket()
	s.SOCKS5Host = "127.0.0.1"
	s.SOCKS5Port = testutil.ListenerPort(ln)
	err := s.Connect(ctx, "example.com", 80)
	wait()

	if !errors.Is(err, ioerr.ConnectionFailed) || !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatalf("got %v", err)
	}
	if s.IsOpen() {
		t.Fatal("socket left open")
	}
}

func TestSOCKS5HostTooLong(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = socks5.ServerNegotiateNoAuth(c)
		_, _ = io.Copy(io.Discard, c)
	})
	defer wait()

	s := NewTCPSocket()
	s.SOCKS5Host = "127.0.0.1"
	s.SOCKS5Port = testutil.ListenerPort(ln)
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if err := s.Connect(ctx, string(long), 80); !errors.Is(err, ioerr.OutOfRange) {
		t.Fatalf("got %v", err)
	}
}

func TestSOCKS5BindUnsupported(t *testing.T) {
	s := NewTCPSocket()
	s.SOCKS5Host = "127.0.0.1"
	if _, err := s.Bind(context.Background(), "127.0.0.1", 0); !errors.Is(err, ioerr.UnsupportedProtocol) {
		t.Fatalf("got %v", err)
	}
}
