package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the outbound TCP connect. Zero leaves it to the
	// operating system.
	DialTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Resolver looks up domain-name targets. Nil means the system resolver.
	Resolver Resolver
}
