package stream

import (
	"bytes"
	"errors"
	"io"

	"github.com/die-net/streamkit/internal/ioerr"
)

// MinReadSize is the smallest low-level read a Stream issues on behalf of a
// short Read.
const MinReadSize = 512

// ErrWouldBlock is returned by non-blocking sources that have no data (or no
// buffer space) available yet.
var ErrWouldBlock = errors.New("stream: operation would block")

// LowLevel is the source a Stream buffers.
//
// LowLevelRead returns n > 0 with a nil error, or 0 with io.EOF at end of
// stream, ErrWouldBlock when nothing is available yet, or another error.
type LowLevel interface {
	LowLevelRead(p []byte) (int, error)
	LowLevelWrite(p []byte) (int, error)
	LowLevelAtEnd() bool
}

type Stream struct {
	ll LowLevel

	readAhead     bytes.Buffer
	writeBuf      bytes.Buffer
	writeBuffered bool
	blocking      bool
	closed        bool
}

// New returns a blocking, unbuffered Stream over ll.
func New(ll LowLevel) *Stream {
	return &Stream{ll: ll, blocking: true}
}

// Read fills p from read-ahead if any is held, otherwise from the source. A
// request shorter than MinReadSize is served from one MinReadSize read whose
// surplus is kept for later calls.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.readAhead.Len() > 0 {
		return s.readAhead.Read(p)
	}
	if len(p) >= MinReadSize {
		return s.ll.LowLevelRead(p)
	}

	var tmp [MinReadSize]byte
	n, err := s.ll.LowLevelRead(tmp[:])
	if n == 0 {
		return 0, err
	}
	c := copy(p, tmp[:n])
	s.readAhead.Write(tmp[c:n])
	return c, nil
}

// ReadExact reads exactly len(p) bytes, failing with TruncatedData if the
// stream ends first.
func (s *Stream) ReadExact(p []byte) error {
	off := 0
	for off < len(p) {
		n, err := s.Read(p[off:])
		off += n
		if errors.Is(err, io.EOF) {
			return &ioerr.Error{Kind: ioerr.TruncatedData, Stream: s, Requested: len(p), Transferred: off}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TryReadLine returns the next line with its CRLF or LF terminator removed.
// If no complete line is available yet it returns ok == false and a nil
// error; the caller may retry once more data arrives. At end of stream an
// unterminated remainder is returned as a final line, after which io.EOF is
// reported.
func (s *Stream) TryReadLine() (line string, ok bool, err error) {
	if s.closed {
		return "", false, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if line, ok := s.takeLine(); ok {
		return line, true, nil
	}
	if s.ll.LowLevelAtEnd() {
		return s.takeRemainder()
	}

	var tmp [MinReadSize]byte
	n, err := s.ll.LowLevelRead(tmp[:])
	if n > 0 {
		s.readAhead.Write(tmp[:n])
		line, ok := s.takeLine()
		return line, ok, nil
	}
	switch {
	case errors.Is(err, io.EOF):
		return s.takeRemainder()
	case errors.Is(err, ErrWouldBlock):
		return "", false, nil
	default:
		return "", false, err
	}
}

// ReadLine blocks until a full line is available. On a non-blocking stream
// it returns ErrWouldBlock instead of spinning.
func (s *Stream) ReadLine() (string, error) {
	for {
		line, ok, err := s.TryReadLine()
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		if !s.blocking {
			return "", ErrWouldBlock
		}
	}
}

func (s *Stream) takeLine() (string, bool) {
	i := bytes.IndexByte(s.readAhead.Bytes(), '\n')
	if i < 0 {
		return "", false
	}
	b := s.readAhead.Next(i + 1)
	return string(trimEOL(b)), true
}

func (s *Stream) takeRemainder() (string, bool, error) {
	if s.readAhead.Len() == 0 {
		return "", false, io.EOF
	}
	b := trimEOL(s.readAhead.Bytes())
	line := string(b)
	s.readAhead.Reset()
	return line, true, nil
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

// Write sends p to the source, or appends it to the write buffer when
// buffering is enabled. A short write on a blocking stream is a WriteFailed
// error.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: s}
	}
	if s.writeBuffered {
		return s.writeBuf.Write(p)
	}
	n, err := s.ll.LowLevelWrite(p)
	if err != nil {
		return n, err
	}
	if s.blocking && n < len(p) {
		return n, &ioerr.Error{Kind: ioerr.WriteFailed, Stream: s, Requested: len(p), Transferred: n}
	}
	return n, nil
}

// WriteString is Write for a string.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Flush writes the write buffer with one low-level write and clears it.
func (s *Stream) Flush() error {
	if s.writeBuf.Len() == 0 {
		return nil
	}
	data := s.writeBuf.Bytes()
	n, err := s.ll.LowLevelWrite(data)
	requested := len(data)
	s.writeBuf.Reset()
	if err != nil {
		return err
	}
	if n < requested {
		return &ioerr.Error{Kind: ioerr.WriteFailed, Stream: s, Requested: requested, Transferred: n}
	}
	return nil
}

func (s *Stream) SetWriteBuffered(on bool) { s.writeBuffered = on }
func (s *Stream) WriteBuffered() bool      { return s.writeBuffered }

// SetBlocking records the blocking mode. Sources that have an OS-level flag
// toggle it themselves and then call this.
func (s *Stream) SetBlocking(on bool) { s.blocking = on }
func (s *Stream) Blocking() bool      { return s.blocking }

func (s *Stream) BufferedLen() int      { return s.readAhead.Len() }
func (s *Stream) HasBufferedData() bool { return s.readAhead.Len() > 0 }

// HasBufferedLine reports whether read-ahead holds a complete line.
func (s *Stream) HasBufferedLine() bool {
	return bytes.IndexByte(s.readAhead.Bytes(), '\n') >= 0
}

// AtEndOfStream reports whether read-ahead is empty and the source is
// exhausted.
func (s *Stream) AtEndOfStream() bool {
	return s.readAhead.Len() == 0 && s.ll.LowLevelAtEnd()
}

// Close releases both buffers. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.readAhead = bytes.Buffer{}
	s.writeBuf = bytes.Buffer{}
	return nil
}

func (s *Stream) Closed() bool { return s.closed }
