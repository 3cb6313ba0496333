package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ListenConfig controls the listening socket.
type ListenConfig struct {
	// KeepAlive is applied to every accepted connection.
	KeepAlive net.KeepAliveConfig

	// ReusePort sets SO_REUSEPORT so several processes can share the port.
	ReusePort bool
}

// ListenTCP listens on the given network/address.
func ListenTCP(ctx context.Context, network, addr string, cfg ListenConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
	if cfg.ReusePort {
		if !reusePortSupported {
			return nil, errors.New("reuse-port is not supported on this platform")
		}
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return ln, nil
}
