package runloop

import (
	"errors"
	"io"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/socket"
	"github.com/die-net/streamkit/internal/stream"
)

// Pollable is anything with a descriptor the loop can wait on.
type Pollable interface {
	Fd() int
	SetBlocking(on bool) error
}

// Reader is a non-blocking byte source. Read returns stream.ErrWouldBlock
// when nothing is available and io.EOF at end of stream.
type Reader interface {
	Pollable
	Read(p []byte) (int, error)
	HasBufferedData() bool
}

type LineReader interface {
	Reader
	TryReadLine() (string, bool, error)
	HasBufferedLine() bool
}

type Writer interface {
	Pollable
	Write(p []byte) (int, error)
}

type Acceptor interface {
	Pollable
	Accept() (*socket.TCPSocket, error)
}

type Datagram interface {
	Pollable
	Receive(p []byte) (int, socket.Address, error)
	Send(p []byte, to socket.Address) error
}

// Kind identifies the concrete sort of stream behind a source.
type Kind int

const (
	KindStream Kind = iota
	KindListener
	KindDatagram
)

type result int

const (
	stepWait result = iota
	stepContinue
	stepDone
)

// operation is one suspended request in a source queue.
type operation interface {
	step() result
	// satisfied reports whether buffered data lets the next step make
	// progress without an OS readiness event.
	satisfied() bool
	// fail delivers err to the continuation without stepping.
	fail(err error)
}

func wouldBlock(err error) bool {
	return errors.Is(err, stream.ErrWouldBlock)
}

type readOp struct {
	r   Reader
	buf []byte
	fn  func(n int, err error) bool
}

func (o *readOp) step() result {
	n, err := o.r.Read(o.buf)
	if wouldBlock(err) {
		return stepWait
	}
	if err != nil {
		o.fn(n, err)
		return stepDone
	}
	if !o.fn(n, nil) {
		return stepDone
	}
	return stepContinue
}

func (o *readOp) satisfied() bool { return o.r.HasBufferedData() }
func (o *readOp) fail(err error)  { o.fn(0, err) }

type readExactOp struct {
	r    Reader
	buf  []byte
	done int
	fn   func(err error)
}

func (o *readExactOp) step() result {
	n, err := o.r.Read(o.buf[o.done:])
	o.done += n
	switch {
	case wouldBlock(err):
		return stepWait
	case errors.Is(err, io.EOF):
		o.fn(&ioerr.Error{Kind: ioerr.TruncatedData, Stream: o.r, Requested: len(o.buf), Transferred: o.done})
		return stepDone
	case err != nil:
		o.fn(err)
		return stepDone
	case o.done == len(o.buf):
		o.fn(nil)
		return stepDone
	}
	return stepContinue
}

func (o *readExactOp) satisfied() bool { return o.r.HasBufferedData() }
func (o *readExactOp) fail(err error)  { o.fn(err) }

type readLineOp struct {
	r  LineReader
	fn func(line string, err error) bool
}

func (o *readLineOp) step() result {
	line, ok, err := o.r.TryReadLine()
	if err != nil {
		o.fn("", err)
		return stepDone
	}
	if !ok {
		return stepWait
	}
	if !o.fn(line, nil) {
		return stepDone
	}
	return stepContinue
}

func (o *readLineOp) satisfied() bool { return o.r.HasBufferedLine() }
func (o *readLineOp) fail(err error)  { o.fn("", err) }

type acceptOp struct {
	l  Acceptor
	fn func(c *socket.TCPSocket, err error) bool
}

func (o *acceptOp) step() result {
	c, err := o.l.Accept()
	if wouldBlock(err) {
		return stepWait
	}
	if err != nil {
		o.fn(nil, err)
		return stepDone
	}
	if !o.fn(c, nil) {
		return stepDone
	}
	return stepContinue
}

func (o *acceptOp) satisfied() bool { return false }
func (o *acceptOp) fail(err error)  { o.fn(nil, err) }

type writeOp struct {
	w    Writer
	buf  []byte
	done int
	fn   func(n int, err error) []byte
}

func (o *writeOp) step() result {
	n, err := o.w.Write(o.buf[o.done:])
	o.done += n
	if wouldBlock(err) {
		return stepWait
	}
	if err != nil {
		o.fn(o.done, err)
		return stepDone
	}
	if o.done < len(o.buf) {
		return stepContinue
	}
	next := o.fn(o.done, nil)
	if next == nil {
		return stepDone
	}
	o.buf, o.done = next, 0
	return stepContinue
}

func (o *writeOp) satisfied() bool { return false }
func (o *writeOp) fail(err error)  { o.fn(o.done, err) }

type receiveOp struct {
	d   Datagram
	buf []byte
	fn  func(n int, from socket.Address, err error) bool
}

func (o *receiveOp) step() result {
	n, from, err := o.d.Receive(o.buf)
	switch {
	case wouldBlock(err):
		return stepWait
	case err != nil:
		o.fn(0, socket.Address{}, err)
		return stepDone
	case n == 0:
		o.fn(0, from, io.EOF)
		return stepDone
	}
	if !o.fn(n, from, nil) {
		return stepDone
	}
	return stepContinue
}

func (o *receiveOp) satisfied() bool { return false }
func (o *receiveOp) fail(err error)  { o.fn(0, socket.Address{}, err) }

type sendOp struct {
	d   Datagram
	buf []byte
	to  socket.Address
	fn  func(err error)
}

func (o *sendOp) step() result {
	err := o.d.Send(o.buf, o.to)
	if wouldBlock(err) {
		return stepWait
	}
	o.fn(err)
	return stepDone
}

func (o *sendOp) satisfied() bool { return false }
func (o *sendOp) fail(err error)  { o.fn(err) }
