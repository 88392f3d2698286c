package dialer

import (
	"fmt"

	"github.com/die-net/streamkit/internal/socket"
)

type Config struct {
	KeepAlive bool
	NoDelay   bool
}

func (c Config) apply(s *socket.TCPSocket) error {
	if c.KeepAlive {
		if err := s.SetKeepAliveEnabled(true); err != nil {
			return fmt.Errorf("set keepalive: %w", err)
		}
	}
	if c.NoDelay {
		if err := s.SetNoDelayEnabled(true); err != nil {
			return fmt.Errorf("set nodelay: %w", err)
		}
	}
	return nil
}
