package socks5

import (
	"errors"
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// Version is the SOCKS protocol version byte.
	Version byte = 0x05

	// UserPassVersion is the RFC 1929 sub-negotiation version byte.
	UserPassVersion byte = 0x01
)

const (
	MethodNone             byte = txsocks5.MethodNone
	MethodUsernamePassword byte = txsocks5.MethodUsernamePassword
	MethodNoAcceptable     byte = 0xff
)

const (
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect byte = txsocks5.CmdConnect

	ATYPIPv4   byte = txsocks5.ATYPIPv4
	ATYPDomain byte = txsocks5.ATYPDomain
	ATYPIPv6   byte = txsocks5.ATYPIPv6

	RepSuccess        byte = txsocks5.RepSuccess
	RepGeneralFailure byte = 0x01
)

var (
	// ErrNeedMoreData means the buffer holds a prefix of a frame. It is never
	// terminal for a session.
	ErrNeedMoreData = errors.New("socks5: need more data")

	ErrMalformedFrame         = errors.New("socks5: malformed frame")
	ErrVersionMismatch        = fmt.Errorf("%w: version mismatch", ErrMalformedFrame)
	ErrNoAcceptableMethod     = errors.New("socks5: no acceptable authentication method")
	ErrAuthenticationFailed   = errors.New("socks5: authentication failed")
	ErrUnsupportedCommand     = errors.New("socks5: unsupported command")
	ErrUnsupportedAddressType = errors.New("socks5: unsupported address type")
)

// Auth holds a username/password pair, either the fixed credentials a
// server checks against or the ones a client presents.
type Auth struct {
	Username string
	Password string
}

// Match reports whether username and password equal a exactly.
func (a Auth) Match(username, password string) bool {
	return username == a.Username && password == a.Password
}
