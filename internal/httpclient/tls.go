package httpclient

import (
	"context"
	"maps"

	"github.com/die-net/streamkit/internal/socket"
)

// TLSConfig describes the TLS session a TLSProvider should establish.
type TLSConfig struct {
	// ServerName is the expected host name. Empty means the URL host.
	ServerName string

	CertificateFile      string
	PrivateKeyFile       string
	PrivateKeyPassphrase string

	// SNIConfigs overrides the whole config for a given host.
	SNIConfigs map[string]*TLSConfig

	// AcceptCertificate, when set, decides on a peer chain that failed
	// verification. chain holds DER certificates, leaf first.
	AcceptCertificate func(serverName string, chain [][]byte) bool
}

// TLSProvider wraps a connected socket in TLS. The returned Conn owns sock.
// Without a provider https URLs fail with UnsupportedProtocol.
type TLSProvider interface {
	Handshake(ctx context.Context, sock *socket.TCPSocket, cfg *TLSConfig) (Conn, error)
}

// forHost returns the config to use for host. c may be nil.
func (c *TLSConfig) forHost(host string) *TLSConfig {
	if c == nil {
		return &TLSConfig{ServerName: host}
	}
	if sni, ok := c.SNIConfigs[host]; ok && sni != nil {
		c = sni
	}
	c2 := *c
	c2.SNIConfigs = maps.Clone(c.SNIConfigs)
	if c2.ServerName == "" {
		c2.ServerName = host
	}
	return &c2
}
