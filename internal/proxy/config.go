package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksgate/internal/dialer"
	"github.com/die-net/socksgate/internal/socks5"
)

type Config struct {
	// Auth is the single username/password pair clients must present.
	Auth socks5.Auth

	// NegotiationTimeout bounds the whole handshake, including the outbound
	// connect. Zero waits indefinitely.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer

	Logger *zap.Logger
}
