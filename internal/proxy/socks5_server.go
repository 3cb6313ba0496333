package proxy

import (
	"context"
	"fmt"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksgate/internal/dialer"
)

// SOCKS5Server accepts SOCKS5 clients and runs one session per connection.
// Sessions share nothing but the read-only Config.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *zap.Logger

	wg sync.WaitGroup
}

// NewSOCKS5Server returns a server whose sessions are closed when ctx is
// done. A nil Dialer dials directly with the system resolver; a nil Logger
// discards output.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: cfg.Logger}
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Serve accepts connections on ln until it fails. Temporary accept errors,
// such as running out of file descriptors, are retried with backoff. It
// returns nil if the failure follows cancellation of the server's context.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if !temporaryAcceptError(err) {
				return fmt.Errorf("accept: %w", err)
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))

			t := time.NewTimer(backoff)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
				return nil
			}
			continue
		}
		backoff = 0

		s.wg.Go(func() {
			s.handleConn(c)
		})
	}
}

func temporaryAcceptError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Wait blocks until every session started by Serve has ended.
func (s *SOCKS5Server) Wait() {
	s.wg.Wait()
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	log := s.log.With(zap.Stringer("client", conn.RemoteAddr()))
	sess := newSession(s.cfg, conn, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("session panic", zap.Any("panic", r), zap.Stack("stack"))
			sess.close()
		}
	}()

	if err := sess.run(s.ctx); err != nil {
		log.Debug("session ended", zap.Error(err))
	}
}
