package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/die-net/streamkit/internal/socket"
)

// Dialer opens a connected TCP socket to host:port.
type Dialer interface {
	Dial(ctx context.Context, host string, port uint16) (*socket.TCPSocket, error)
}

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks5://host[:port]
//
// The SOCKS5 port defaults to 1080.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks5":
		if u.User != nil {
			return nil, errors.New("invalid url: socks5 authentication is not supported")
		}
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid url: missing host")
		}
		port := uint64(socket.DefaultSOCKS5Port)
		if p := u.Port(); p != "" {
			port, err = strconv.ParseUint(p, 10, 16)
			if err != nil || port == 0 {
				return nil, fmt.Errorf("invalid url: bad port %q", p)
			}
		}
		return NewSOCKS5ProxyDialer(cfg, host, uint16(port)), nil
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
