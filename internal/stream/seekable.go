package stream

import (
	"io"

	"github.com/die-net/streamkit/internal/ioerr"
)

// LowLevelSeeker is a LowLevel source with a physical cursor.
type LowLevelSeeker interface {
	LowLevel
	LowLevelSeek(offset int64, whence int) (int64, error)
}

// Seekable is a Stream whose source can be repositioned.
type Seekable struct {
	*Stream
	ll LowLevelSeeker
}

func NewSeekable(ll LowLevelSeeker) *Seekable {
	return &Seekable{Stream: New(ll), ll: ll}
}

// Seek repositions the source. Relative seeks are corrected for read-ahead,
// since those bytes have been fetched but not yet delivered. Read-ahead is
// discarded after every successful seek.
func (s *Seekable) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		offset -= int64(s.readAhead.Len())
	}
	pos, err := s.ll.LowLevelSeek(offset, whence)
	if err != nil {
		return 0, &ioerr.Error{Kind: ioerr.SeekFailed, Stream: s, Offset: offset, Whence: whence, Err: err}
	}
	s.readAhead.Reset()
	return pos, nil
}
