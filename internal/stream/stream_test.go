package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/bits"
	"testing"

	"github.com/die-net/streamkit/internal/ioerr"
	"golang.org/x/sys/unix"
)

// memSource serves data in chunks of at most chunk bytes and records every
// low-level call.
type memSource struct {
	data  []byte
	pos   int
	chunk int
	reads int
	out   bytes.Buffer

	// writeLimit caps each low-level write when > 0.
	writeLimit int
}

func (m *memSource) LowLevelRead(p []byte) (int, error) {
	m.reads++
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n := len(p)
	if m.chunk > 0 && n > m.chunk {
		n = m.chunk
	}
	n = copy(p[:n], m.data[m.pos:])
	m.pos += n
	return n, nil
}

func (m *memSource) LowLevelWrite(p []byte) (int, error) {
	if m.writeLimit > 0 && len(p) > m.writeLimit {
		p = p[:m.writeLimit]
	}
	return m.out.Write(p)
}

func (m *memSource) LowLevelAtEnd() bool { return m.pos >= len(m.data) }

func (m *memSource) LowLevelSeek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.data))
	}
	pos := base + offset
	if pos < 0 {
		return 0, unix.EINVAL
	}
	m.pos = int(pos)
	return pos, nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestReadAhead(t *testing.T) {
	data := pattern(2000)

	for _, l := range []int{1, 3, 100, 511} {
		src := &memSource{data: data}
		s := New(src)

		buf := make([]byte, l)
		n, err := s.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if n != l {
			t.Fatalf("L=%d: got %d bytes", l, n)
		}
		if !bytes.Equal(buf, data[:l]) {
			t.Fatalf("L=%d: wrong first read", l)
		}
		if src.reads != 1 || src.pos != MinReadSize {
			t.Fatalf("L=%d: reads=%d pos=%d", l, src.reads, src.pos)
		}
		if got := s.BufferedLen(); got != MinReadSize-l {
			t.Fatalf("L=%d: buffered=%d", l, got)
		}

		// The surplus comes back before the source is touched again.
		rest := make([]byte, MinReadSize)
		n, err = s.Read(rest)
		if err != nil {
			t.Fatal(err)
		}
		if n != MinReadSize-l || !bytes.Equal(rest[:n], data[l:MinReadSize]) {
			t.Fatalf("L=%d: second read n=%d", l, n)
		}
		if src.reads != 1 {
			t.Fatalf("L=%d: source read again while read-ahead was pending", l)
		}
	}
}

func TestReadLargeGoesDirect(t *testing.T) {
	src := &memSource{data: pattern(1024)}
	s := New(src)

	buf := make([]byte, 600)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 600 || s.BufferedLen() != 0 {
		t.Fatalf("n=%d buffered=%d", n, s.BufferedLen())
	}
}

func TestReadEOF(t *testing.T) {
	s := New(&memSource{data: []byte("ab")})
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	if n != 2 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := s.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if !s.AtEndOfStream() {
		t.Fatal("expected end of stream")
	}
}

func TestReadExact(t *testing.T) {
	data := pattern(300)

	s := New(&memSource{data: data, chunk: 7})
	buf := make([]byte, 300)
	if err := s.ReadExact(buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatal("data mismatch")
	}

	s = New(&memSource{data: data[:10]})
	err := s.ReadExact(make([]byte, 20))
	if !errors.Is(err, ioerr.TruncatedData) {
		t.Fatalf("expected TruncatedData, got %v", err)
	}
	var e *ioerr.Error
	if !errors.As(err, &e) || e.Requested != 20 || e.Transferred != 10 {
		t.Fatalf("unexpected error detail %+v", e)
	}
}

func TestTryReadLine(t *testing.T) {
	s := New(&memSource{data: []byte("HTTP/1.1 200 OK\r\nA: b\n\r\ntail")})

	want := []string{"HTTP/1.1 200 OK", "A: b", "", "tail"}
	for i, w := range want {
		line, ok, err := s.TryReadLine()
		if err != nil || !ok {
			t.Fatalf("line %d: ok=%v err=%v", i, ok, err)
		}
		if line != w {
			t.Fatalf("line %d: got %q want %q", i, line, w)
		}
	}
	if _, ok, err := s.TryReadLine(); ok || !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got ok=%v err=%v", ok, err)
	}
}

type blockingSource struct {
	memSource
	avail int
}

func (b *blockingSource) LowLevelRead(p []byte) (int, error) {
	if b.pos >= b.avail {
		if b.pos >= len(b.data) {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, b.data[b.pos:b.avail])
	b.pos += n
	return n, nil
}

func TestTryReadLinePartial(t *testing.T) {
	src := &blockingSource{memSource: memSource{data: []byte("partial line\nnext")}, avail: 4}
	s := New(src)
	s.SetBlocking(false)

	if _, ok, err := s.TryReadLine(); ok || err != nil {
		t.Fatalf("expected no line yet, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.TryReadLine(); ok || err != nil {
		t.Fatalf("expected would-block to read as no line, got ok=%v err=%v", ok, err)
	}
	if _, err := s.ReadLine(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}

	src.avail = len(src.data)
	line, ok, err := s.TryReadLine()
	if err != nil || !ok || line != "partial line" {
		t.Fatalf("got %q ok=%v err=%v", line, ok, err)
	}
	if !s.HasBufferedData() || s.HasBufferedLine() {
		t.Fatal("expected unterminated remainder in read-ahead")
	}
}

func TestWrite(t *testing.T) {
	src := &memSource{}
	s := New(src)

	if _, err := s.WriteString("direct"); err != nil {
		t.Fatal(err)
	}
	s.SetWriteBuffered(true)
	if _, err := s.WriteString(" buffered"); err != nil {
		t.Fatal(err)
	}
	if got := src.out.String(); got != "direct" {
		t.Fatalf("buffered bytes leaked early: %q", got)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := src.out.String(); got != "direct buffered" {
		t.Fatalf("got %q", got)
	}
}

func TestShortWriteFails(t *testing.T) {
	s := New(&memSource{writeLimit: 3})
	n, err := s.WriteString("abcdef")
	if n != 3 || !errors.Is(err, ioerr.WriteFailed) {
		t.Fatalf("n=%d err=%v", n, err)
	}

	s.SetBlocking(false)
	if n, err := s.WriteString("abcdef"); n != 3 || err != nil {
		t.Fatalf("non-blocking short write: n=%d err=%v", n, err)
	}
}

func TestClose(t *testing.T) {
	s := New(&memSource{data: []byte("x")})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.Closed() {
		t.Fatal("not closed")
	}
	if _, err := s.Read(make([]byte, 1)); !errors.Is(err, ioerr.NotOpen) {
		t.Fatalf("expected NotOpen, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	orders := []binary.ByteOrder{binary.BigEndian, binary.LittleEndian, HostOrder}

	for _, order := range orders {
		t.Run(order.String(), func(t *testing.T) {
			src := &memSource{}
			w := New(src)
			if err := w.WriteInt16(-2, order); err != nil {
				t.Fatal(err)
			}
			if err := w.WriteUint32(0xdeadbeef, order); err != nil {
				t.Fatal(err)
			}
			if err := w.WriteInt64(math.MinInt64+5, order); err != nil {
				t.Fatal(err)
			}
			if err := w.WriteFloat32(1.5, order); err != nil {
				t.Fatal(err)
			}
			if err := w.WriteFloat64(-math.Pi, order); err != nil {
				t.Fatal(err)
			}
			if err := w.WriteUint16s([]uint16{1, 0x0203, 0xffff}, order); err != nil {
				t.Fatal(err)
			}

			r := New(&memSource{data: src.out.Bytes()})
			if v, err := r.ReadInt16(order); err != nil || v != -2 {
				t.Fatalf("int16 %v %v", v, err)
			}
			if v, err := r.ReadUint32(order); err != nil || v != 0xdeadbeef {
				t.Fatalf("uint32 %x %v", v, err)
			}
			if v, err := r.ReadInt64(order); err != nil || v != math.MinInt64+5 {
				t.Fatalf("int64 %v %v", v, err)
			}
			if v, err := r.ReadFloat32(order); err != nil || v != 1.5 {
				t.Fatalf("float32 %v %v", v, err)
			}
			if v, err := r.ReadFloat64(order); err != nil || v != -math.Pi {
				t.Fatalf("float64 %v %v", v, err)
			}
			v, err := r.ReadUint16s(3, order)
			if err != nil {
				t.Fatal(err)
			}
			if v[0] != 1 || v[1] != 0x0203 || v[2] != 0xffff {
				t.Fatalf("uint16s %v", v)
			}
		})
	}
}

func TestCodecSwap(t *testing.T) {
	src := &memSource{}
	w := New(src)
	if err := w.WriteUint32(0x01020304, binary.LittleEndian); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteInt32s([]int32{0x0a0b0c0d, 1}, binary.LittleEndian); err != nil {
		t.Fatal(err)
	}

	r := New(&memSource{data: src.out.Bytes()})
	v, err := r.ReadUint32(binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}
	if v != bits.ReverseBytes32(0x01020304) {
		t.Fatalf("got %#x", v)
	}
	vs, err := r.ReadInt32s(2, binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(vs[0]) != bits.ReverseBytes32(0x0a0b0c0d) || uint32(vs[1]) != bits.ReverseBytes32(1) {
		t.Fatalf("got %#x", vs)
	}

	if _, err := r.ReadUint16(binary.BigEndian); !errors.Is(err, ioerr.TruncatedData) {
		t.Fatalf("expected TruncatedData, got %v", err)
	}
}

func TestSeekDiscardsReadAhead(t *testing.T) {
	data := pattern(2000)
	src := &memSource{data: data}
	s := NewSeekable(src)

	const n = 10
	if _, err := s.Read(make([]byte, n)); err != nil {
		t.Fatal(err)
	}
	buffered := s.BufferedLen()
	if buffered != MinReadSize-n {
		t.Fatalf("buffered=%d", buffered)
	}

	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if pos != int64(MinReadSize-buffered) {
		t.Fatalf("pos=%d want %d", pos, MinReadSize-buffered)
	}
	if s.BufferedLen() != 0 {
		t.Fatal("read-ahead survived seek")
	}

	if _, err := s.Seek(1000, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := s.Read(buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[1000:1004]) {
		t.Fatalf("read stale bytes after seek: %v", buf)
	}

	_, err = s.Seek(-5000, io.SeekCurrent)
	if !errors.Is(err, ioerr.SeekFailed) || !errors.Is(err, unix.EINVAL) {
		t.Fatalf("expected SeekFailed/EINVAL, got %v", err)
	}
}
