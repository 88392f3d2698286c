package socket

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/stream"
)

// StreamSocket is a connection-oriented socket read and written through an
// embedded Stream.
type StreamSocket struct {
	*stream.Stream

	handle Handle
	atEnd  bool
}

func (s *StreamSocket) init() {
	s.handle = InvalidHandle
	s.Stream = stream.New(s)
}

func (s *StreamSocket) LowLevelRead(p []byte) (int, error) {
	if s.handle == InvalidHandle {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if s.atEnd {
		return 0, io.EOF
	}
	for {
		n, err := unix.Read(int(s.handle), p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, stream.ErrWouldBlock
		case err != nil:
			return 0, &ioerr.Error{Kind: ioerr.ReadFailed, Stream: s, Requested: len(p), Err: err}
		case n == 0:
			s.atEnd = true
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *StreamSocket) LowLevelWrite(p []byte) (int, error) {
	if s.handle == InvalidHandle {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	for {
		n, err := unix.Write(int(s.handle), p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, stream.ErrWouldBlock
		case err != nil:
			return 0, &ioerr.Error{Kind: ioerr.WriteFailed, Stream: s, Requested: len(p), Err: err}
		}
		return n, nil
	}
}

func (s *StreamSocket) LowLevelAtEnd() bool {
	return s.atEnd
}

// SetBlocking toggles O_NONBLOCK on the descriptor.
func (s *StreamSocket) SetBlocking(on bool) error {
	if s.handle != InvalidHandle {
		if err := s.handle.setNonblock(!on); err != nil {
			return &ioerr.Error{Kind: ioerr.SetOptionFailed, Stream: s, Err: err}
		}
	}
	s.Stream.SetBlocking(on)
	return nil
}

// Fd returns the descriptor, or -1 once closed.
func (s *StreamSocket) Fd() int        { return int(s.handle) }
func (s *StreamSocket) Handle() Handle { return s.handle }
func (s *StreamSocket) IsOpen() bool   { return s.handle != InvalidHandle }

// Close releases the descriptor and the stream buffers. The socket cannot be
// reused afterwards.
func (s *StreamSocket) Close() error {
	if s.handle == InvalidHandle {
		return &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	err := s.handle.Close()
	s.handle = InvalidHandle
	_ = s.Stream.Close()
	return err
}
