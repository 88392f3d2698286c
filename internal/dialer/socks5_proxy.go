package dialer

import (
	"context"
	"fmt"

	"github.com/die-net/streamkit/internal/socket"
)

type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyHost string
	proxyPort uint16
}

func NewSOCKS5ProxyDialer(cfg Config, proxyHost string, proxyPort uint16) Dialer {
	return &SOCKS5ProxyDialer{cfg: cfg, proxyHost: proxyHost, proxyPort: proxyPort}
}

// Proxy returns the proxy address.
func (f *SOCKS5ProxyDialer) Proxy() (string, uint16) {
	return f.proxyHost, f.proxyPort
}

func (f *SOCKS5ProxyDialer) Dial(ctx context.Context, host string, port uint16) (*socket.TCPSocket, error) {
	s := socket.NewTCPSocket()
	s.SOCKS5Host = f.proxyHost
	s.SOCKS5Port = f.proxyPort

	if err := s.Connect(ctx, host, port); err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", hostPort(host, port), err)
	}
	if err := f.cfg.apply(s); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", hostPort(host, port), err)
	}
	return s, nil
}
