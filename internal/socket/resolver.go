package socket

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/die-net/streamkit/internal/ioerr"
)

type SocketType int

const (
	SocketStream   SocketType = unix.SOCK_STREAM
	SocketDatagram SocketType = unix.SOCK_DGRAM
)

// AddressInfo is one resolution candidate.
type AddressInfo struct {
	Family     Family
	SocketType SocketType
	Protocol   int
	Address    Address
}

// Resolve looks up host and returns its candidates in resolver order, each
// carrying port. Numeric hosts are returned without a lookup. It fails with
// AddressTranslationFailed if the lookup errors or yields nothing.
func Resolve(ctx context.Context, host string, port uint16, st SocketType) ([]AddressInfo, error) {
	var ips []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		ips = []netip.Addr{ip}
	} else {
		ips, err = net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, &ioerr.Error{Kind: ioerr.AddressTranslationFailed, Host: host, Port: port, Err: err}
		}
	}
	if len(ips) == 0 {
		return nil, &ioerr.Error{Kind: ioerr.AddressTranslationFailed, Host: host, Port: port, Detail: "no addresses"}
	}

	proto := unix.IPPROTO_TCP
	if st == SocketDatagram {
		proto = unix.IPPROTO_UDP
	}

	infos := make([]AddressInfo, 0, len(ips))
	for _, ip := range ips {
		a := AddressFromAddrPort(netip.AddrPortFrom(ip, port))
		infos = append(infos, AddressInfo{Family: a.family, SocketType: st, Protocol: proto, Address: a})
	}
	return infos, nil
}

// AddressToStringAndPort renders an IP address as numeric host text and
// port.
func AddressToStringAndPort(a Address) (string, uint16, error) {
	if a.family != FamilyIPv4 && a.family != FamilyIPv6 {
		return "", 0, &ioerr.Error{Kind: ioerr.AddressTranslationFailed, Detail: "not an IP address: " + a.String()}
	}
	host, portText, err := net.SplitHostPort(a.String())
	if err != nil {
		return "", 0, &ioerr.Error{Kind: ioerr.AddressTranslationFailed, Err: err}
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return "", 0, &ioerr.Error{Kind: ioerr.OutOfRange, Host: host, Err: err}
	}
	return host, uint16(port), nil
}

// nameMu serialises local and peer address queries process-wide.
var nameMu sync.Mutex

// SockName returns the local address of h.
func SockName(h Handle) (Address, error) {
	nameMu.Lock()
	defer nameMu.Unlock()

	sa, err := unix.Getsockname(int(h))
	if err != nil {
		return Address{}, err
	}
	return addressFromSockaddr(sa), nil
}

// PeerName returns the remote address of a connected h.
func PeerName(h Handle) (Address, error) {
	nameMu.Lock()
	defer nameMu.Unlock()

	sa, err := unix.Getpeername(int(h))
	if err != nil {
		return Address{}, err
	}
	return addressFromSockaddr(sa), nil
}

func netInterfaceIndex(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}
