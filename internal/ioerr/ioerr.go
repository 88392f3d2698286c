package ioerr

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Kind classifies an I/O failure. A Kind is itself an error so it can be used
// as an errors.Is target.
type Kind int

const (
	NotOpen Kind = iota + 1
	AlreadyConnected
	OutOfRange
	AddressTranslationFailed
	BindFailed
	ListenFailed
	ConnectionFailed
	AcceptFailed
	ReadFailed
	WriteFailed
	SeekFailed
	GetOptionFailed
	SetOptionFailed
	OpenFailed
	TruncatedData
	InvalidServerReply
	UnsupportedVersion
	UnsupportedProtocol
	RequestFailed
	InvalidArgument
)

var kindNames = map[Kind]string{
	NotOpen:                  "not open",
	AlreadyConnected:         "already connected",
	OutOfRange:               "out of range",
	AddressTranslationFailed: "address translation failed",
	BindFailed:               "bind failed",
	ListenFailed:             "listen failed",
	ConnectionFailed:         "connection failed",
	AcceptFailed:             "accept failed",
	ReadFailed:               "read failed",
	WriteFailed:              "write failed",
	SeekFailed:               "seek failed",
	GetOptionFailed:          "get option failed",
	SetOptionFailed:          "set option failed",
	OpenFailed:               "open failed",
	TruncatedData:            "truncated data",
	InvalidServerReply:       "invalid server reply",
	UnsupportedVersion:       "unsupported version",
	UnsupportedProtocol:      "unsupported protocol",
	RequestFailed:            "request failed",
	InvalidArgument:          "invalid argument",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a Kind plus diagnostic context. Zero-valued context fields are
// omitted from the message.
type Error struct {
	Kind Kind
	Err  error

	// Stream is the object the operation was performed on.
	Stream any

	Host        string
	Port        uint16
	Requested   int
	Transferred int
	Offset      int64
	Whence      int
	Backlog     int
	Detail      string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Host != "" {
		fmt.Fprintf(&b, " %s:%d", e.Host, e.Port)
	}
	if e.Requested != 0 || e.Transferred != 0 {
		fmt.Fprintf(&b, " (requested %d, transferred %d)", e.Requested, e.Transferred)
	}
	if e.Kind == SeekFailed {
		fmt.Fprintf(&b, " (offset %d, whence %d)", e.Offset, e.Whence)
	}
	if e.Backlog != 0 {
		fmt.Fprintf(&b, " (backlog %d)", e.Backlog)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf returns an *Error of kind k with a formatted detail message.
func Errorf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// Errno returns the platform error code carried by err, or 0.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
