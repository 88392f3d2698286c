package socks5

import (
	"errors"
	"fmt"
	"io"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiateNoAuth reads a method negotiation and selects "no
// authentication", replying 0xff if the client did not offer it.
func ServerNegotiateNoAuth(rw io.ReadWriter) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(rw)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF indicates no acceptable methods.
		_ = writeNegotiationReply(rw, 0xff)
		return errors.New("client does not support no-auth")
	}
	return writeNegotiationReply(rw, txsocks5.MethodNone)
}

// ServerRejectMethods reads a method negotiation and answers that none of
// the offered methods is acceptable.
func ServerRejectMethods(rw io.ReadWriter) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(rw); err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}
	return writeNegotiationReply(rw, 0xff)
}

func ServerReadRequest(r io.Reader) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(r)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}
