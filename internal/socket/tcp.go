package socket

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/socks5"
	"github.com/die-net/streamkit/internal/stream"
)

// Proxy settings copied into every new TCPSocket. An empty host disables
// tunnelling.
var (
	DefaultSOCKS5Host string
	DefaultSOCKS5Port uint16 = 1080
)

type TCPSocket struct {
	StreamSocket

	// SOCKS5Host and SOCKS5Port select a proxy that Connect tunnels
	// through. They must be set before Connect.
	SOCKS5Host string
	SOCKS5Port uint16

	listening bool
	peer      Address
}

func NewTCPSocket() *TCPSocket {
	s := &TCPSocket{SOCKS5Host: DefaultSOCKS5Host, SOCKS5Port: DefaultSOCKS5Port}
	s.init()
	return s
}

// Connect opens a connection to host:port, trying each resolved candidate in
// turn. With a SOCKS5 proxy configured the TCP connection goes to the proxy
// and a CONNECT to host:port is negotiated over it.
func (s *TCPSocket) Connect(ctx context.Context, host string, port uint16) error {
	if s.IsOpen() {
		return &ioerr.Error{Kind: ioerr.AlreadyConnected, Stream: s}
	}

	dstHost, dstPort := host, port
	if s.SOCKS5Host != "" {
		host, port = s.SOCKS5Host, s.SOCKS5Port
	}

	infos, err := Resolve(ctx, host, port, SocketStream)
	if err != nil {
		return err
	}

	var lastErr error
	for _, ai := range infos {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		h, err := newHandle(ai.Address.domain(), unix.SOCK_STREAM)
		if err != nil {
			lastErr = err
			continue
		}
		sa, err := ai.Address.sockaddr()
		if err == nil {
			err = h.connect(sa)
		}
		if err != nil {
			_ = h.Close()
			lastErr = err
			continue
		}
		s.handle = h
		s.peer = ai.Address
		break
	}
	if !s.IsOpen() {
		return &ioerr.Error{Kind: ioerr.ConnectionFailed, Stream: s, Host: host, Port: port, Err: lastErr}
	}

	if s.SOCKS5Host == "" {
		return nil
	}
	if err := socks5.ClientDial(s, dstHost, dstPort); err != nil {
		_ = s.Close()
		if errors.Is(err, socks5.ErrHostTooLong) {
			return &ioerr.Error{Kind: ioerr.OutOfRange, Stream: s, Host: dstHost, Port: dstPort, Err: err}
		}
		return &ioerr.Error{Kind: ioerr.ConnectionFailed, Stream: s, Host: dstHost, Port: dstPort, Err: err}
	}
	return nil
}

// Bind binds to host:port with SO_REUSEADDR and returns the bound port,
// which is chosen by the OS when port is 0.
func (s *TCPSocket) Bind(ctx context.Context, host string, port uint16) (uint16, error) {
	if s.IsOpen() {
		return 0, &ioerr.Error{Kind: ioerr.AlreadyConnected, Stream: s}
	}
	if s.SOCKS5Host != "" {
		return 0, &ioerr.Error{Kind: ioerr.UnsupportedProtocol, Stream: s, Detail: "bind through a SOCKS5 proxy"}
	}

	h, bound, err := bindHandle(ctx, host, port, SocketStream, true)
	if err != nil {
		err.Stream = s
		return 0, err
	}
	s.handle = h
	return bound, nil
}

func (s *TCPSocket) Listen(backlog int) error {
	if !s.IsOpen() {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if err := unix.Listen(int(s.handle), backlog); err != nil {
		return &ioerr.Error{Kind: ioerr.ListenFailed, Stream: s, Backlog: backlog, Err: err}
	}
	s.listening = true
	return nil
}

// Accept returns the next pending connection as a blocking TCPSocket with
// close-on-exec set. A non-blocking listener with nothing pending returns
// stream.ErrWouldBlock.
func (s *TCPSocket) Accept() (*TCPSocket, error) {
	if !s.IsOpen() {
		return nil, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}

	var (
		fd  int
		sa  unix.Sockaddr
		err error
	)
	for {
		fd, sa, err = unix.Accept(int(s.handle))
		if err != unix.EINTR {
			break
		}
	}
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return nil, stream.ErrWouldBlock
	case err != nil:
		return nil, &ioerr.Error{Kind: ioerr.AcceptFailed, Stream: s, Err: err}
	}

	unix.CloseOnExec(fd)
	// BSDs inherit O_NONBLOCK from the listener.
	_ = unix.SetNonblock(fd, false)

	c := NewTCPSocket()
	c.handle = Handle(fd)
	c.peer = addressFromSockaddr(sa)
	return c, nil
}

func (s *TCPSocket) Listening() bool { return s.listening }

// RemoteAddress returns the peer of a connected or accepted socket. For a
// proxied connection that is the proxy.
func (s *TCPSocket) RemoteAddress() (Address, error) {
	if !s.IsOpen() {
		return Address{}, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if s.listening {
		return Address{}, &ioerr.Error{Kind: ioerr.InvalidArgument, Stream: s, Detail: "listening socket has no peer"}
	}
	if s.peer.IsValid() {
		return s.peer, nil
	}
	return PeerName(s.handle)
}

func (s *TCPSocket) LocalAddress() (Address, error) {
	if !s.IsOpen() {
		return Address{}, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	return SockName(s.handle)
}

func (s *TCPSocket) KeepAliveEnabled() (bool, error) {
	return s.getOption(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
}

func (s *TCPSocket) SetKeepAliveEnabled(on bool) error {
	return s.setOption(unix.SOL_SOCKET, unix.SO_KEEPALIVE, on)
}

func (s *TCPSocket) NoDelayEnabled() (bool, error) {
	return s.getOption(unix.IPPROTO_TCP, unix.TCP_NODELAY)
}

func (s *TCPSocket) SetNoDelayEnabled(on bool) error {
	return s.setOption(unix.IPPROTO_TCP, unix.TCP_NODELAY, on)
}

func (s *TCPSocket) getOption(level, opt int) (bool, error) {
	if !s.IsOpen() {
		return false, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	v, err := s.handle.boolOption(level, opt)
	if err != nil {
		return false, &ioerr.Error{Kind: ioerr.GetOptionFailed, Stream: s, Err: err}
	}
	return v, nil
}

func (s *TCPSocket) setOption(level, opt int, on bool) error {
	if !s.IsOpen() {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if err := s.handle.setBoolOption(level, opt, on); err != nil {
		return &ioerr.Error{Kind: ioerr.SetOptionFailed, Stream: s, Err: err}
	}
	return nil
}

func bindHandle(ctx context.Context, host string, port uint16, st SocketType, reuseAddr bool) (Handle, uint16, *ioerr.Error) {
	infos, err := Resolve(ctx, host, port, st)
	if err != nil {
		var ie *ioerr.Error
		if errors.As(err, &ie) {
			return InvalidHandle, 0, ie
		}
		return InvalidHandle, 0, &ioerr.Error{Kind: ioerr.AddressTranslationFailed, Host: host, Port: port, Err: err}
	}

	var lastErr error
	for _, ai := range infos {
		h, err := newHandle(ai.Address.domain(), int(st))
		if err != nil {
			lastErr = err
			continue
		}
		if reuseAddr {
			_ = h.setBoolOption(unix.SOL_SOCKET, unix.SO_REUSEADDR, true)
		}
		sa, err := ai.Address.sockaddr()
		if err == nil {
			err = unix.Bind(int(h), sa)
		}
		if err != nil {
			_ = h.Close()
			lastErr = err
			continue
		}

		if port != 0 {
			return h, port, nil
		}
		local, err := SockName(h)
		if err != nil {
			_ = h.Close()
			return InvalidHandle, 0, &ioerr.Error{Kind: ioerr.BindFailed, Host: host, Port: port, Err: err}
		}
		return h, local.Port(), nil
	}
	return InvalidHandle, 0, &ioerr.Error{Kind: ioerr.BindFailed, Host: host, Port: port, Err: lastErr}
}
