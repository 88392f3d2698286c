package httpclient

import (
	"bytes"

	"github.com/die-net/streamkit/internal/ioerr"
)

// RequestBody collects a request body of exactly the declared
// Content-Length. Closing it sends the body and moves the request on to
// reading the response. It must be used from the loop goroutine.
type RequestBody struct {
	h      *handler
	length int64
	buf    bytes.Buffer
	closed bool
}

func newRequestBody(h *handler, length int64) *RequestBody {
	return &RequestBody{h: h, length: length}
}

// Len returns the declared length.
func (b *RequestBody) Len() int64 { return b.length }

// Remaining returns how many bytes are still expected.
func (b *RequestBody) Remaining() int64 { return b.length - int64(b.buf.Len()) }

// Write fails with WriteFailed, writing nothing, if p does not fit in the
// remaining length.
func (b *RequestBody) Write(p []byte) (int, error) {
	if b.closed {
		return 0, &ioerr.Error{Kind: ioerr.NotOpen, Stream: b}
	}
	if int64(len(p)) > b.Remaining() {
		return 0, &ioerr.Error{Kind: ioerr.WriteFailed, Stream: b, Requested: len(p), Detail: "body exceeds Content-Length"}
	}
	return b.buf.Write(p)
}

// Close fails the request with TruncatedData if fewer than Len bytes were
// written.
func (b *RequestBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if n := b.buf.Len(); int64(n) < b.length {
		err := &ioerr.Error{Kind: ioerr.TruncatedData, Stream: b, Requested: int(b.length), Transferred: n}
		b.h.fail(err)
		return err
	}
	b.h.sendBody(b.buf.Bytes())
	return nil
}
