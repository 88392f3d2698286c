package httpclient

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/runloop"
	"github.com/die-net/streamkit/internal/socket"
	"github.com/die-net/streamkit/internal/stream"
)

type framing int

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingUntilClose
)

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// Response is a received status and header with a body still to be read
// from the connection. Read blocks; AsyncRead goes through the loop.
type Response struct {
	StatusCode int
	// Proto is "1.0" or "1.1".
	Proto   string
	Header  Header
	Request *Request

	conn      Conn
	keepAlive bool
	framing   framing
	length    int64
	remaining int64
	chunk     chunkState
	eof       bool
	closed    bool
}

func newResponse(req *Request, status int, proto string, header Header, conn Conn) (*Response, error) {
	r := &Response{
		StatusCode: status,
		Proto:      proto,
		Header:     header,
		Request:    req,
		conn:       conn,
		length:     -1,
	}
	if proto == "1.1" {
		r.keepAlive = !header.hasToken("Connection", "close")
	} else {
		r.keepAlive = header.hasToken("Connection", "keep-alive")
	}

	switch {
	case req.method() == "HEAD", status/100 == 1, status == 204, status == 304:
		r.framing = framingNone
	case header.hasToken("Transfer-Encoding", "chunked"):
		r.framing = framingChunked
	case header.Has("Content-Length"):
		v := header.Get("Content-Length")
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return nil, ioerr.Errorf(ioerr.InvalidServerReply, "Content-Length %q", v)
		}
		r.framing = framingLength
		r.length, r.remaining = n, n
	default:
		r.framing = framingUntilClose
		r.keepAlive = false
	}
	r.eof = r.framing == framingNone || r.framing == framingLength && r.length == 0
	if r.framing == framingNone {
		r.length = 0
	}
	return r, nil
}

// KeepAlive reports whether the connection stays open for reuse after the
// body has been read.
func (r *Response) KeepAlive() bool { return r.keepAlive }

// ContentLength returns the declared body length, or -1.
func (r *Response) ContentLength() int64 { return r.length }

// Chunked reports whether the body uses chunked transfer coding.
func (r *Response) Chunked() bool { return r.framing == framingChunked }

// AtEnd reports whether the whole body has been consumed.
func (r *Response) AtEnd() bool { return r.eof }

// Read reads body bytes, waiting for the connection to become readable when
// nothing is buffered. It returns io.EOF after the last byte.
func (r *Response) Read(p []byte) (int, error) {
	if r.closed {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: r}
	}
	for {
		n, err := r.read(p)
		if !errors.Is(err, stream.ErrWouldBlock) {
			return n, err
		}
		if err := socket.WaitReadable(r.conn.Fd()); err != nil {
			return 0, &ioerr.Error{Kind: ioerr.ReadFailed, Stream: r, Err: err}
		}
	}
}

// AsyncRead queues a body read on l. fn follows the runloop.Loop.Read
// contract.
func (r *Response) AsyncRead(l *runloop.Loop, buf []byte, fn func(n int, err error) bool) {
	l.Read(&responseReader{r: r, checkClosed: true}, buf, fn)
}

// Close releases the connection unless it is being kept for reuse.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if !r.keepAlive && r.conn.IsOpen() {
		return r.conn.Close()
	}
	return nil
}

// read is the non-blocking body decoder. It returns stream.ErrWouldBlock
// when the connection has nothing more to give yet.
func (r *Response) read(p []byte) (int, error) {
	for {
		if r.eof {
			return 0, io.EOF
		}
		if len(p) == 0 {
			return 0, nil
		}

		switch r.framing {
		case framingUntilClose:
			n, err := r.conn.Read(p)
			if errors.Is(err, io.EOF) {
				r.eof = true
			}
			return n, err

		case framingLength:
			return r.readBounded(p)

		case framingChunked:
			switch r.chunk {
			case chunkData:
				return r.readBounded(p)

			case chunkSize:
				line, err := r.readLine()
				if err != nil {
					return 0, err
				}
				size, err := parseChunkSize(line)
				if err != nil {
					return 0, err
				}
				if size > 0 {
					r.remaining = size
					r.chunk = chunkData
				} else if r.keepAlive {
					r.chunk = chunkTrailer
				} else {
					r.eof = true
				}

			case chunkDataEnd:
				line, err := r.readLine()
				if err != nil {
					return 0, err
				}
				if line != "" {
					return 0, &ioerr.Error{Kind: ioerr.InvalidServerReply, Stream: r, Detail: "missing CRLF after chunk"}
				}
				r.chunk = chunkSize

			case chunkTrailer:
				line, err := r.readLine()
				if err != nil {
					return 0, err
				}
				if line == "" {
					r.eof = true
				}
			}
		}
	}
}

// readBounded reads up to r.remaining bytes of a sized body or chunk.
func (r *Response) readBounded(p []byte) (int, error) {
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.conn.Read(p)
	r.remaining -= int64(n)
	if r.remaining == 0 {
		if r.framing == framingChunked {
			r.chunk = chunkDataEnd
		} else {
			r.eof = true
		}
	}
	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, nil
		}
		return 0, r.truncated()
	}
	return n, err
}

func (r *Response) readLine() (string, error) {
	line, ok, err := r.conn.TryReadLine()
	switch {
	case errors.Is(err, io.EOF):
		return "", r.truncated()
	case err != nil:
		return "", err
	case !ok:
		return "", stream.ErrWouldBlock
	}
	return line, nil
}

func (r *Response) truncated() error {
	e := &ioerr.Error{Kind: ioerr.TruncatedData, Stream: r, Err: io.ErrUnexpectedEOF}
	if r.framing == framingLength {
		e.Requested = int(r.length)
		e.Transferred = int(r.length - r.remaining)
	}
	return e
}

func parseChunkSize(line string) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, ioerr.Errorf(ioerr.InvalidServerReply, "chunk size %q", line)
	}
	return n, nil
}

// responseReader adapts a Response body to runloop.Reader.
type responseReader struct {
	r           *Response
	checkClosed bool
}

func (rr *responseReader) Fd() int {
	if rr.checkClosed && rr.r.closed {
		return -1
	}
	return rr.r.conn.Fd()
}

func (rr *responseReader) SetBlocking(on bool) error { return rr.r.conn.SetBlocking(on) }

func (rr *responseReader) Read(p []byte) (int, error) {
	if rr.checkClosed && rr.r.closed {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: rr.r}
	}
	return rr.r.read(p)
}

func (rr *responseReader) HasBufferedData() bool {
	return rr.r.eof || rr.r.conn.HasBufferedData()
}
