package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

type directDialer struct {
	cfg      Config
	resolver Resolver
}

// NewDirectDialer returns a Dialer that connects straight to the target.
func NewDirectDialer(cfg Config) Dialer {
	r := cfg.Resolver
	if r == nil {
		r = NewSystemResolver()
	}
	return &directDialer{cfg: cfg, resolver: r}
}

// DialContext connects to address. A domain-name host is resolved first and
// the first address returned is dialed; a failed lookup is reported the same
// way as a failed connect.
func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		ip, err = d.resolver.Resolve(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: resolve: %w", network, address, err)
		}
	}

	nd := net.Dialer{Timeout: d.cfg.DialTimeout, KeepAliveConfig: d.cfg.KeepAlive}

	conn, err := nd.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	return conn, nil
}
