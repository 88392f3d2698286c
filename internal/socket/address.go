package socket

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"net/netip"

	"golang.org/x/sys/unix"
)

type Family int

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
	FamilyUnix
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// Address is a socket address: IPv4, IPv6, a Unix-domain path, or opaque
// storage the package does not interpret.
type Address struct {
	family Family
	addr   []byte
	port   uint16
	zone   uint32
}

// AddressFromAddrPort converts ap, unmapping IPv4-in-IPv6 addresses.
func AddressFromAddrPort(ap netip.AddrPort) Address {
	ip := ap.Addr().Unmap()
	if ip.Is4() {
		b := ip.As4()
		return Address{family: FamilyIPv4, addr: b[:], port: ap.Port()}
	}
	b := ip.As16()
	a := Address{family: FamilyIPv6, addr: b[:], port: ap.Port()}
	if z := ip.Zone(); z != "" {
		if ifi, err := netInterfaceIndex(z); err == nil {
			a.zone = ifi
		}
	}
	return a
}

func UnixAddress(path string) Address {
	return Address{family: FamilyUnix, addr: []byte(path)}
}

// OpaqueAddress wraps raw address storage of an unknown family.
func OpaqueAddress(raw []byte) Address {
	return Address{family: FamilyUnknown, addr: bytes.Clone(raw)}
}

func (a Address) Family() Family { return a.family }
func (a Address) Port() uint16   { return a.port }
func (a Address) IsValid() bool  { return len(a.addr) > 0 }

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte { return bytes.Clone(a.addr) }

// IP returns the address as a netip.Addr, or the zero Addr for non-IP
// families.
func (a Address) IP() netip.Addr {
	switch a.family {
	case FamilyIPv4:
		return netip.AddrFrom4([4]byte(a.addr))
	case FamilyIPv6:
		return netip.AddrFrom16([16]byte(a.addr))
	default:
		return netip.Addr{}
	}
}

func (a Address) String() string {
	switch a.family {
	case FamilyIPv4, FamilyIPv6:
		return netip.AddrPortFrom(a.IP(), a.port).String()
	case FamilyUnix:
		return string(a.addr)
	default:
		return hex.EncodeToString(a.addr)
	}
}

// Equal compares port and address bytes.
func (a Address) Equal(b Address) bool {
	return a.port == b.port && bytes.Equal(a.addr, b.addr)
}

// Hash mixes family, port and address bytes with Jenkins' one-at-a-time
// function.
func (a Address) Hash() uint32 {
	var h uint32
	add := func(b byte) {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}

	add(byte(a.family))
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], a.port)
	add(p[0])
	add(p[1])
	for _, b := range a.addr {
		add(b)
	}

	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

func (a Address) domain() int {
	switch a.family {
	case FamilyIPv4:
		return unix.AF_INET
	case FamilyIPv6:
		return unix.AF_INET6
	case FamilyUnix:
		return unix.AF_UNIX
	default:
		return unix.AF_UNSPEC
	}
}

func (a Address) sockaddr() (unix.Sockaddr, error) {
	switch a.family {
	case FamilyIPv4:
		return &unix.SockaddrInet4{Port: int(a.port), Addr: [4]byte(a.addr)}, nil
	case FamilyIPv6:
		return &unix.SockaddrInet6{Port: int(a.port), ZoneId: a.zone, Addr: [16]byte(a.addr)}, nil
	case FamilyUnix:
		return &unix.SockaddrUnix{Name: string(a.addr)}, nil
	default:
		return nil, unix.EAFNOSUPPORT
	}
}

func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{family: FamilyIPv4, addr: bytes.Clone(sa.Addr[:]), port: uint16(sa.Port)}
	case *unix.SockaddrInet6:
		return Address{family: FamilyIPv6, addr: bytes.Clone(sa.Addr[:]), port: uint16(sa.Port), zone: sa.ZoneId}
	case *unix.SockaddrUnix:
		return UnixAddress(sa.Name)
	default:
		return Address{}
	}
}
