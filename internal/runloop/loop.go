package runloop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
	"github.com/die-net/streamkit/internal/socket"
)

// ErrIdle is returned by RunUntil when its condition is unmet and nothing is
// left that could change it.
var ErrIdle = errors.New("runloop: no pending work")

type source struct {
	fd     int
	kind   Kind
	reads  []operation
	writes []operation
}

// Loop must be driven from a single goroutine. Only Post is safe to call
// from others.
type Loop struct {
	sources map[int]*source
	ready   []int
	workers int

	wakeR, wakeW int

	mu     sync.Mutex
	posted []func()
}

func New() (*Loop, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("runloop: wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, fmt.Errorf("runloop: wake pipe: %w", err)
		}
	}
	return &Loop{sources: make(map[int]*source), wakeR: p[0], wakeW: p[1]}, nil
}

// Close releases the wake pipe. Queued operations are dropped without
// notification.
func (l *Loop) Close() error {
	l.sources = make(map[int]*source)
	l.ready = nil
	err := unix.Close(l.wakeR)
	if err2 := unix.Close(l.wakeW); err == nil {
		err = err2
	}
	return err
}

// Read queues a bounded read into buf. fn is called after every read; it
// returns true to keep reading into buf. End of stream is delivered as
// io.EOF and ends the operation.
func (l *Loop) Read(r Reader, buf []byte, fn func(n int, err error) bool) {
	l.register(r, KindStream, &readOp{r: r, buf: buf, fn: fn}, false)
}

// ReadExact queues a read of exactly len(buf) bytes. fn is called once.
func (l *Loop) ReadExact(r Reader, buf []byte, fn func(err error)) {
	l.register(r, KindStream, &readExactOp{r: r, buf: buf, fn: fn}, false)
}

// ReadLine queues a line read. fn returns true to read another line.
func (l *Loop) ReadLine(r LineReader, fn func(line string, err error) bool) {
	l.register(r, KindStream, &readLineOp{r: r, fn: fn}, false)
}

// Write queues buf for writing. When it has been written fn may return the
// next buffer to write, or nil to finish.
func (l *Loop) Write(w Writer, buf []byte, fn func(n int, err error) []byte) {
	l.register(w, KindStream, &writeOp{w: w, buf: buf, fn: fn}, true)
}

// Accept queues an accept. fn returns true to keep accepting.
func (l *Loop) Accept(a Acceptor, fn func(c *socket.TCPSocket, err error) bool) {
	l.register(a, KindListener, &acceptOp{l: a, fn: fn}, false)
}

// Receive queues a datagram receive into buf. fn returns true to receive
// another datagram.
func (l *Loop) Receive(d Datagram, buf []byte, fn func(n int, from socket.Address, err error) bool) {
	l.register(d, KindDatagram, &receiveOp{d: d, buf: buf, fn: fn}, false)
}

// Send queues one datagram to to.
func (l *Loop) Send(d Datagram, buf []byte, to socket.Address, fn func(err error)) {
	l.register(d, KindDatagram, &sendOp{d: d, buf: buf, to: to, fn: fn}, true)
}

func (l *Loop) register(p Pollable, kind Kind, op operation, write bool) {
	fd := p.Fd()
	if fd < 0 {
		l.Post(func() { op.fail(&ioerr.Error{Kind: ioerr.NotOpen, Stream: p}) })
		return
	}

	src := l.sources[fd]
	if src == nil {
		if err := p.SetBlocking(false); err != nil {
			l.Post(func() { op.fail(err) })
			return
		}
		src = &source{fd: fd, kind: kind}
		l.sources[fd] = src
	} else if src.kind != kind {
		panic(fmt.Sprintf("runloop: fd %d registered as kind %d, not %d", fd, src.kind, kind))
	}

	if write {
		src.writes = append(src.writes, op)
		return
	}
	src.reads = append(src.reads, op)
	if len(src.reads) == 1 && op.satisfied() {
		l.ready = append(l.ready, fd)
	}
}

// Cancel drops every operation queued for p without calling any of them.
func (l *Loop) Cancel(p Pollable) {
	l.CancelFd(p.Fd())
}

func (l *Loop) CancelFd(fd int) {
	delete(l.sources, fd)
	l.ready = slices.DeleteFunc(l.ready, func(r int) bool { return r == fd })
}

// Pending reports the number of queued read and write operations for fd.
func (l *Loop) Pending(fd int) (reads, writes int) {
	if src := l.sources[fd]; src != nil {
		return len(src.reads), len(src.writes)
	}
	return 0, 0
}

// OnReadable steps the head of fd's read queue until it waits. When an
// operation finishes and the next one can be served from buffered data, that
// one is stepped as well.
func (l *Loop) OnReadable(fd int) {
	l.drive(fd, false)
}

// OnWritable steps the head of fd's write queue until it waits.
func (l *Loop) OnWritable(fd int) {
	l.drive(fd, true)
}

func (l *Loop) drive(fd int, write bool) {
	for {
		src := l.sources[fd]
		if src == nil {
			return
		}
		q := &src.reads
		if write {
			q = &src.writes
		}
		if len(*q) == 0 {
			return
		}

		op := (*q)[0]
		switch op.step() {
		case stepWait:
			return
		case stepContinue:
			continue
		}

		// The continuation may have cancelled or replaced the source.
		if l.sources[fd] != src {
			return
		}
		if len(*q) > 0 && (*q)[0] == op {
			(*q)[0] = nil
			*q = (*q)[1:]
		}
		if len(src.reads) == 0 && len(src.writes) == 0 {
			delete(l.sources, fd)
			return
		}
		if len(*q) == 0 || (!write && !(*q)[0].satisfied()) {
			return
		}
	}
}

// Post schedules fn to run on the loop goroutine. It is safe to call from
// any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	_, _ = unix.Write(l.wakeW, []byte{0})
}

// Go runs work on a new goroutine and calls done with its result on the
// loop goroutine.
func (l *Loop) Go(work func() error, done func(error)) {
	l.workers++
	go func() {
		err := work()
		l.Post(func() {
			l.workers--
			done(err)
		})
	}()
}

func (l *Loop) runPosted() bool {
	l.mu.Lock()
	fns := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

func (l *Loop) idle() bool {
	l.mu.Lock()
	n := len(l.posted)
	l.mu.Unlock()
	return n == 0 && len(l.sources) == 0 && len(l.ready) == 0 && l.workers == 0
}

// RunOnce runs posted functions and buffered-ready sources, then polls once.
// It only blocks when block is set and nothing ran before the poll.
func (l *Loop) RunOnce(block bool) error {
	ran := l.runPosted()

	ready := l.ready
	l.ready = nil
	for _, fd := range ready {
		l.OnReadable(fd)
	}
	if ran || len(ready) > 0 || len(l.ready) > 0 {
		block = false
	}

	pfds := make([]unix.PollFd, 1, len(l.sources)+1)
	pfds[0] = unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN}
	for fd, src := range l.sources {
		var ev int16
		if len(src.reads) > 0 {
			ev |= unix.POLLIN
		}
		if len(src.writes) > 0 {
			ev |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: ev})
	}

	timeout := 0
	if block {
		timeout = -1
	}
	n, err := unix.Poll(pfds, timeout)
	if err == unix.EINTR {
		return nil
	}
	if err != nil {
		return fmt.Errorf("runloop: poll: %w", err)
	}
	if n == 0 {
		return nil
	}

	const readable = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	const writable = unix.POLLOUT | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		if i == 0 {
			l.drainWake()
			continue
		}
		if pfd.Revents&readable != 0 {
			l.OnReadable(int(pfd.Fd))
		}
		if pfd.Revents&writable != 0 {
			l.OnWritable(int(pfd.Fd))
		}
	}
	return nil
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// RunUntil drives the loop until cond returns true. It returns ctx.Err() if
// ctx ends first and ErrIdle if the loop runs out of work.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	stop := context.AfterFunc(ctx, func() { l.Post(func() {}) })
	defer stop()

	for !cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.idle() {
			return ErrIdle
		}
		if err := l.RunOnce(true); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the loop until it has no work left or ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.Post(func() {}) })
	defer stop()

	for !l.idle() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.RunOnce(true); err != nil {
			return err
		}
	}
	return nil
}
