package socks5

import (
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect
)

// WriteReply writes a reply with status rep and an all-zero bound address of
// type atyp. For ATYPDomain the bound address is the name "0".
func WriteReply(w io.Writer, rep, atyp byte) error {
	var addr []byte
	switch atyp {
	case txsocks5.ATYPIPv6:
		addr = []byte(net.IPv6zero)
	case txsocks5.ATYPDomain:
		addr = []byte("0")
	default:
		atyp = txsocks5.ATYPIPv4
		addr = []byte{0x00, 0x00, 0x00, 0x00}
	}
	if _, err := txsocks5.NewReply(rep, atyp, addr, []byte{0x00, 0x00}).WriteTo(w); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// WriteCommandNotSupportedReply writes a SOCKS5 reply indicating that the
// requested command is not supported.
func WriteCommandNotSupportedReply(w io.Writer, atyp byte) {
	_ = WriteReply(w, txsocks5.RepCommandNotSupported, atyp)
}

func WriteConnectionRefusedReply(w io.Writer, atyp byte) {
	_ = WriteReply(w, txsocks5.RepConnectionRefused, atyp)
}

// WriteSuccessReply writes a SOCKS5 success reply using localAddr as the bound
// address.
func WriteSuccessReply(w io.Writer, localAddr net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(localAddr.String())
	if err != nil {
		return fmt.Errorf("parse local address %q: %w", localAddr.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(w); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

func writeNegotiationReply(w io.Writer, method byte) error {
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(w); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}
