package dialer

import (
	"context"
	"fmt"

	"github.com/die-net/streamkit/internal/socket"
)

type directDialer struct {
	cfg Config
}

func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) Dial(ctx context.Context, host string, port uint16) (*socket.TCPSocket, error) {
	s := socket.NewTCPSocket()
	s.SOCKS5Host = ""

	if err := s.Connect(ctx, host, port); err != nil {
		return nil, fmt.Errorf("dial %s: %w", hostPort(host, port), err)
	}
	if err := f.cfg.apply(s); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("dial %s: %w", hostPort(host, port), err)
	}
	return s, nil
}
