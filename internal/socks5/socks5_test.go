package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		atyp byte
	}{
		{name: "ipv4_bound", atyp: txsocks5.ATYPIPv4},
		{name: "ipv6_bound", atyp: txsocks5.ATYPIPv6},
		{name: "domain_bound", atyp: txsocks5.ATYPDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				if err := ServerNegotiateNoAuth(serverConn); err != nil {
					return err
				}
				req, err := ServerReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return fmt.Errorf("unexpected command: %d", req.Cmd)
				}
				if req.Atyp != txsocks5.ATYPDomain {
					return fmt.Errorf("unexpected address type: %d", req.Atyp)
				}
				if got := req.Address(); got != "example.com:8080" {
					return fmt.Errorf("unexpected address: %s", got)
				}
				if err := WriteReply(serverConn, txsocks5.RepSuccess, tt.atyp); err != nil {
					return err
				}
				_, err = serverConn.Write([]byte("hello"))
				return err
			})

			if err := ClientDial(clientConn, "example.com", 8080); err != nil {
				t.Fatal(err)
			}

			// The bound address must be consumed exactly.
			buf := make([]byte, 5)
			if _, err := io.ReadFull(clientConn, buf); err != nil {
				t.Fatal(err)
			}
			if string(buf) != "hello" {
				t.Fatalf("got %q after reply", buf)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientDialSuccessReplyWithLocalAddr(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if err := ServerNegotiateNoAuth(serverConn); err != nil {
			return err
		}
		if _, err := ServerReadRequest(serverConn); err != nil {
			return err
		}
		return WriteSuccessReply(serverConn, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
	})

	if err := ClientDial(clientConn, "127.0.0.1", 80); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientDialStatusErrno(t *testing.T) {
	tests := []struct {
		status byte
		want   unix.Errno
	}{
		{status: 0x01, want: 0},
		{status: 0x02, want: unix.EACCES},
		{status: 0x03, want: unix.ENETUNREACH},
		{status: 0x04, want: unix.EHOSTUNREACH},
		{status: 0x05, want: unix.ECONNREFUSED},
		{status: 0x06, want: unix.ETIMEDOUT},
		{status: 0x07, want: unix.EPROTONOSUPPORT},
		{status: 0x08, want: unix.EAFNOSUPPORT},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%#02x", tt.status), func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				if err := ServerNegotiateNoAuth(serverConn); err != nil {
					return err
				}
				if _, err := ServerReadRequest(serverConn); err != nil {
					return err
				}
				// The client stops reading after the status, so the tail
				// of this write fails once it hangs up.
				_ = WriteReply(serverConn, tt.status, txsocks5.ATYPIPv4)
				return nil
			})

			err := ClientDial(clientConn, "example.com", 80)
			_ = clientConn.Close()
			if gerr := g.Wait(); gerr != nil {
				t.Fatal(gerr)
			}

			var re *ReplyError
			if !errors.As(err, &re) || re.Status != tt.status {
				t.Fatalf("expected ReplyError status %d, got %v", tt.status, err)
			}
			if got := StatusErrno(tt.status); got != tt.want {
				t.Fatalf("StatusErrno=%v want %v", got, tt.want)
			}
			if tt.want != 0 && !errors.Is(err, tt.want) {
				t.Fatalf("expected errors.Is(%v)", tt.want)
			}
		})
	}
}

func TestClientDialMethodRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		return ServerRejectMethods(serverConn)
	})

	err := ClientDial(clientConn, "example.com", 80)
	if !errors.Is(err, ErrMethodRejected) || !errors.Is(err, unix.EPROTONOSUPPORT) {
		t.Fatalf("expected ErrMethodRejected, got %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientDialProtocolMismatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if err := ServerNegotiateNoAuth(serverConn); err != nil {
			return err
		}
		if _, err := ServerReadRequest(serverConn); err != nil {
			return err
		}
		_, _ = serverConn.Write([]byte{0x04, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return nil
	})

	err := ClientDial(clientConn, "example.com", 80)
	_ = clientConn.Close()
	if gerr := g.Wait(); gerr != nil {
		t.Fatal(gerr)
	}
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestClientNegotiateVersionMismatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := txsocks5.NewNegotiationRequestFrom(serverConn); err != nil {
			return err
		}
		_, err := serverConn.Write([]byte{0x04, txsocks5.MethodNone})
		return err
	})

	err := ClientNegotiate(clientConn)
	_ = clientConn.Close()
	if gerr := g.Wait(); gerr != nil {
		t.Fatal(gerr)
	}
	if !errors.Is(err, ErrProtocolMismatch) || !errors.Is(err, unix.EPROTONOSUPPORT) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestClientDialHostTooLong(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	err := ClientDial(clientConn, strings.Repeat("a", 256), 80)
	if !errors.Is(err, ErrHostTooLong) {
		t.Fatalf("expected ErrHostTooLong, got %v", err)
	}
}
