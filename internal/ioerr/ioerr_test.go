package ioerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("dial: %w", &Error{Kind: ConnectionFailed, Err: unix.ECONNREFUSED, Host: "example.com", Port: 80})

	if !errors.Is(err, ConnectionFailed) {
		t.Fatal("expected ConnectionFailed")
	}
	if errors.Is(err, ReadFailed) {
		t.Fatal("unexpected ReadFailed match")
	}
	if !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatal("expected errno match through Unwrap")
	}
	if got := Errno(err); got != unix.ECONNREFUSED {
		t.Fatalf("Errno=%v", got)
	}
	if got := KindOf(err); got != ConnectionFailed {
		t.Fatalf("KindOf=%v", got)
	}
	if !strings.Contains(err.Error(), "example.com:80") {
		t.Fatalf("message %q lacks host", err.Error())
	}
}

func TestKindOfBareKind(t *testing.T) {
	if got := KindOf(fmt.Errorf("x: %w", TruncatedData)); got != TruncatedData {
		t.Fatalf("KindOf=%v", got)
	}
	if got := KindOf(errors.New("plain")); got != 0 {
		t.Fatalf("KindOf=%v", got)
	}
	if got := Errno(errors.New("plain")); got != 0 {
		t.Fatalf("Errno=%v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "kind only", err: &Error{Kind: NotOpen}, want: "not open"},
		{name: "lengths", err: &Error{Kind: WriteFailed, Requested: 10, Transferred: 4}, want: "write failed (requested 10, transferred 4)"},
		{name: "seek", err: &Error{Kind: SeekFailed, Offset: -3, Whence: 1, Err: unix.EINVAL}, want: "seek failed (offset -3, whence 1): invalid argument"},
		{name: "detail", err: Errorf(InvalidServerReply, "bad status line %q", "FOO"), want: `invalid server reply: bad status line "FOO"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
