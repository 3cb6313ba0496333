package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksgate/internal/dialer"
	"github.com/die-net/socksgate/internal/socks5"
)

var (
	// ErrUpstreamConnect wraps failures to resolve or connect to the target.
	ErrUpstreamConnect = errors.New("upstream connect failed")

	// ErrChannel wraps I/O failures on either side of a session.
	ErrChannel = errors.New("channel error")
)

const readBufferSize = 4 << 10

type sessionState int

const (
	stateNegotiatingMethod sessionState = iota
	stateAuthenticating
	stateAwaitingRequest
	stateRelaying
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateNegotiatingMethod:
		return "negotiating-method"
	case stateAuthenticating:
		return "authenticating"
	case stateAwaitingRequest:
		return "awaiting-request"
	case stateRelaying:
		return "relaying"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session is one client connection. It is only ever touched by the goroutine
// running it.
type session struct {
	auth               socks5.Auth
	dialer             dialer.Dialer
	negotiationTimeout time.Duration
	log                *zap.Logger

	client net.Conn
	// target is set once the outbound connect succeeds.
	target net.Conn

	state   sessionState
	// inbound holds client bytes not yet consumed by a complete frame.
	inbound []byte
}

func newSession(cfg Config, client net.Conn, log *zap.Logger) *session {
	return &session{
		auth:               cfg.Auth,
		dialer:             cfg.Dialer,
		negotiationTimeout: cfg.NegotiationTimeout,
		log:                log,
		client:             client,
		state:              stateNegotiatingMethod,
	}
}

// run reads the handshake from the client, then relays until either side
// closes. Both connections are closed when it returns.
func (s *session) run(ctx context.Context) error {
	defer s.close()

	stop := context.AfterFunc(ctx, func() {
		_ = s.client.Close()
	})
	defer stop()

	if err := s.handshake(ctx); err != nil {
		return err
	}

	pending := s.inbound
	s.inbound = nil

	stats, err := Relay(ctx, s.client, s.target, pending)
	s.transition(stateClosed)
	s.log.Debug("relay closed",
		zap.Int64("client_to_target", stats.ClientToTarget),
		zap.Int64("target_to_client", stats.TargetToClient),
		zap.Error(err))
	return err
}

func (s *session) handshake(ctx context.Context) error {
	if s.negotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.negotiationTimeout)
		defer cancel()

		_ = s.client.SetDeadline(time.Now().Add(s.negotiationTimeout))
		defer func() { _ = s.client.SetDeadline(time.Time{}) }()
	}

	buf := make([]byte, readBufferSize)
	for s.state != stateRelaying {
		n, err := s.client.Read(buf)
		if n > 0 {
			if perr := s.receive(ctx, buf[:n]); perr != nil {
				return perr
			}
		}
		if err != nil && s.state != stateRelaying {
			state := s.state
			s.transition(stateClosed)
			return fmt.Errorf("%w: read client while %s: %w", ErrChannel, state, err)
		}
	}
	return nil
}

// receive appends chunk to the input buffer and advances through every frame
// the buffer now completes. It returns nil when it needs more input or the
// session has reached the relaying state.
func (s *session) receive(ctx context.Context, chunk []byte) error {
	if s.state >= stateRelaying {
		return fmt.Errorf("receive while %s", s.state)
	}

	s.inbound = append(s.inbound, chunk...)

	for s.state < stateRelaying {
		n, err := s.step(ctx)
		if errors.Is(err, socks5.ErrNeedMoreData) {
			return nil
		}
		if err != nil {
			s.transition(stateClosed)
			return err
		}
		s.inbound = append(s.inbound[:0], s.inbound[n:]...)
	}
	return nil
}

func (s *session) step(ctx context.Context) (int, error) {
	switch s.state {
	case stateNegotiatingMethod:
		return s.negotiateMethod()
	case stateAuthenticating:
		return s.authenticate()
	case stateAwaitingRequest:
		return s.connect(ctx)
	default:
		return 0, fmt.Errorf("unexpected state %s", s.state)
	}
}

func (s *session) negotiateMethod() (int, error) {
	sel, n, err := socks5.ParseMethodSelection(s.inbound)
	if err != nil {
		return 0, err
	}

	if !sel.Offers(socks5.MethodUsernamePassword) {
		_ = s.write(socks5.MethodSelectionReply(socks5.MethodNoAcceptable))
		return 0, fmt.Errorf("%w: offered % x", socks5.ErrNoAcceptableMethod, sel.Methods)
	}
	if err := s.write(socks5.MethodSelectionReply(socks5.MethodUsernamePassword)); err != nil {
		return 0, err
	}

	s.transition(stateAuthenticating)
	return n, nil
}

func (s *session) authenticate() (int, error) {
	creds, n, err := socks5.ParseUserPassAuth(s.inbound)
	if err != nil {
		return 0, err
	}

	ok := s.auth.Match(creds.Username, creds.Password)
	if err := s.write(socks5.AuthReply(ok)); err != nil {
		return 0, err
	}
	if !ok {
		s.log.Warn("authentication failed", zap.String("username", creds.Username))
		return 0, fmt.Errorf("%w: user %q", socks5.ErrAuthenticationFailed, creds.Username)
	}

	s.transition(stateAwaitingRequest)
	return n, nil
}

// connect parses the CONNECT request and dials the target. The state stays
// awaiting-request while the dial is in flight.
func (s *session) connect(ctx context.Context) (int, error) {
	req, n, err := socks5.ParseConnectRequest(s.inbound)
	if errors.Is(err, socks5.ErrNeedMoreData) {
		return 0, err
	}
	if err != nil {
		_ = s.write(socks5.FailureReply())
		return 0, err
	}

	addr := req.Address()
	target, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		_ = s.write(socks5.FailureReply())
		return 0, fmt.Errorf("%w: %w", ErrUpstreamConnect, err)
	}
	s.target = target

	var bound netip.AddrPort
	if ta, ok := target.LocalAddr().(*net.TCPAddr); ok {
		bound = ta.AddrPort()
	}
	if err := s.write(socks5.ConnectReply(socks5.RepSuccess, bound)); err != nil {
		return 0, err
	}

	s.log = s.log.With(zap.String("target", addr))
	s.log.Info("connection established", zap.Stringer("bound", bound))
	s.transition(stateRelaying)
	return n, nil
}

func (s *session) write(b []byte) error {
	if _, err := s.client.Write(b); err != nil {
		return fmt.Errorf("%w: write client: %w", ErrChannel, err)
	}
	return nil
}

func (s *session) transition(next sessionState) {
	if s.state == next {
		return
	}
	if ce := s.log.Check(zap.DebugLevel, "session state"); ce != nil {
		ce.Write(zap.Stringer("from", s.state), zap.Stringer("to", next))
	}
	s.state = next
}

// close releases both connections. It is safe to call more than once.
func (s *session) close() {
	s.transition(stateClosed)
	_ = s.client.Close()
	if s.target != nil {
		_ = s.target.Close()
	}
}
