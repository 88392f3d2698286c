package socket

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/stream"
)

// UDPSocket is a connectionless datagram socket. Every Send names its
// destination; every Receive reports its sender.
type UDPSocket struct {
	handle Handle
}

func NewUDPSocket() *UDPSocket {
	return &UDPSocket{handle: InvalidHandle}
}

// Bind binds to host:port and returns the bound port.
func (u *UDPSocket) Bind(ctx context.Context, host string, port uint16) (uint16, error) {
	if u.IsOpen() {
		return 0, &ioerr.Error{Kind: ioerr.AlreadyConnected, Stream: u}
	}
	h, bound, err := bindHandle(ctx, host, port, SocketDatagram, false)
	if err != nil {
		err.Stream = u
		return 0, err
	}
	u.handle = h
	return bound, nil
}

// Receive reads one datagram into p.
func (u *UDPSocket) Receive(p []byte) (int, Address, error) {
	if !u.IsOpen() {
		return 0, Address{}, &ioerr.Error{Kind: ioerr.NotOpen, Stream: u}
	}
	for {
		n, from, err := unix.Recvfrom(int(u.handle), p, 0)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, Address{}, stream.ErrWouldBlock
		case err != nil:
			return 0, Address{}, &ioerr.Error{Kind: ioerr.ReadFailed, Stream: u, Requested: len(p), Err: err}
		}
		return n, addressFromSockaddr(from), nil
	}
}

// Send writes p as one datagram to to.
func (u *UDPSocket) Send(p []byte, to Address) error {
	if !u.IsOpen() {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: u}
	}
	sa, err := to.sockaddr()
	if err != nil {
		return &ioerr.Error{Kind: ioerr.WriteFailed, Stream: u, Requested: len(p), Err: err}
	}
	for {
		err := unix.Sendto(int(u.handle), p, 0, sa)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return stream.ErrWouldBlock
		case err != nil:
			return &ioerr.Error{Kind: ioerr.WriteFailed, Stream: u, Requested: len(p), Err: err}
		}
		return nil
	}
}

func (u *UDPSocket) SetBlocking(on bool) error {
	if !u.IsOpen() {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: u}
	}
	if err := u.handle.setNonblock(!on); err != nil {
		return &ioerr.Error{Kind: ioerr.SetOptionFailed, Stream: u, Err: err}
	}
	return nil
}

func (u *UDPSocket) LocalAddress() (Address, error) {
	if !u.IsOpen() {
		return Address{}, &ioerr.Error{Kind: ioerr.NotOpen, Stream: u}
	}
	return SockName(u.handle)
}

func (u *UDPSocket) Fd() int      { return int(u.handle) }
func (u *UDPSocket) IsOpen() bool { return u.handle != InvalidHandle }

func (u *UDPSocket) Close() error {
	if !u.IsOpen() {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: u}
	}
	err := u.handle.Close()
	u.handle = InvalidHandle
	return err
}
