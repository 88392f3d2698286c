package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sys/unix"
)

const version = 0x05

var (
	ErrMethodRejected   = fmt.Errorf("socks5: no acceptable authentication method: %w", unix.EPROTONOSUPPORT)
	ErrProtocolMismatch = fmt.Errorf("socks5: protocol mismatch: %w", unix.EPROTONOSUPPORT)
	ErrHostTooLong      = errors.New("socks5: destination host longer than 255 bytes")
)

// ReplyError is a CONNECT reply carrying a non-zero status. It unwraps to
// the matching errno.
type ReplyError struct {
	Status byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5: connect failed with status %#02x", e.Status)
}

func (e *ReplyError) Unwrap() error {
	if errno := StatusErrno(e.Status); errno != 0 {
		return errno
	}
	return nil
}

// StatusErrno maps a CONNECT reply status to an errno, or 0 for statuses
// without one.
func StatusErrno(status byte) unix.Errno {
	switch status {
	case 0x02:
		return unix.EACCES
	case 0x03:
		return unix.ENETUNREACH
	case 0x04:
		return unix.EHOSTUNREACH
	case 0x05:
		return unix.ECONNREFUSED
	case 0x06:
		return unix.ETIMEDOUT
	case 0x07:
		return unix.EPROTONOSUPPORT
	case 0x08:
		return unix.EAFNOSUPPORT
	default:
		return 0
	}
}

// ClientDial negotiates "no authentication" and then CONNECTs to host:port
// over rw.
func ClientDial(rw io.ReadWriter, host string, port uint16) error {
	if len(host) > 255 {
		return ErrHostTooLong
	}
	if err := ClientNegotiate(rw); err != nil {
		return err
	}
	return ClientConnect(rw, host, port)
}

func ClientNegotiate(rw io.ReadWriter) error {
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(rw); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(rw)
	if errors.Is(err, txsocks5.ErrVersion) {
		return ErrProtocolMismatch
	}
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}
	if neg.Method != txsocks5.MethodNone {
		return ErrMethodRejected
	}
	return nil
}

// ClientConnect sends a CONNECT for host:port as a domain-name address and
// consumes the reply, discarding the bound address.
func ClientConnect(rw io.ReadWriter, host string, port uint16) error {
	if len(host) > 255 {
		return ErrHostTooLong
	}

	dstPort := binary.BigEndian.AppendUint16(nil, port)
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPDomain, []byte(host), dstPort).WriteTo(rw); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(rw, hdr[:]); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if hdr[0] != version || hdr[2] != 0 {
		return ErrProtocolMismatch
	}
	if hdr[1] != txsocks5.RepSuccess {
		return &ReplyError{Status: hdr[1]}
	}

	var n int
	switch hdr[3] {
	case txsocks5.ATYPIPv4:
		n = 4
	case txsocks5.ATYPIPv6:
		n = 16
	case txsocks5.ATYPDomain:
		var l [1]byte
		if _, err := io.ReadFull(rw, l[:]); err != nil {
			return fmt.Errorf("read reply address: %w", err)
		}
		n = int(l[0])
	default:
		return ErrProtocolMismatch
	}

	// Bound address and port are not used.
	if _, err := io.ReadFull(rw, make([]byte, n+2)); err != nil {
		return fmt.Errorf("read reply address: %w", err)
	}
	return nil
}
