package socks5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// MethodSelection is the client's version identifier/method selection
// message.
//
//	+----+----------+----------+
//	|VER | NMETHODS | METHODS  |
//	+----+----------+----------+
//	| 1  |    1     | 1 to 255 |
//	+----+----------+----------+
type MethodSelection struct {
	Methods []byte
}

// Offers reports whether the client listed method.
func (m MethodSelection) Offers(method byte) bool {
	return slices.Contains(m.Methods, method)
}

// ParseMethodSelection parses a method selection message at the start of b
// and returns it with the number of bytes it occupies.
func ParseMethodSelection(b []byte) (MethodSelection, int, error) {
	if len(b) < 2 {
		return MethodSelection{}, 0, ErrNeedMoreData
	}
	if b[0] != Version {
		return MethodSelection{}, 0, fmt.Errorf("%w: method selection version %#02x", ErrVersionMismatch, b[0])
	}

	n := 2 + int(b[1])
	if len(b) < n {
		return MethodSelection{}, 0, ErrNeedMoreData
	}

	return MethodSelection{Methods: slices.Clone(b[2:n])}, n, nil
}

// MethodSelectionReply returns the server's choice of method. MethodNoAcceptable
// tells the client none of its methods are usable.
func MethodSelectionReply(method byte) []byte {
	var buf bytes.Buffer
	_, _ = txsocks5.NewNegotiationReply(method).WriteTo(&buf)
	return buf.Bytes()
}

// ParseUserPassAuth parses an RFC 1929 username/password request.
//
//	+----+------+----------+------+----------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+----+------+----------+------+----------+
//	| 1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+----+------+----------+------+----------+
func ParseUserPassAuth(b []byte) (Auth, int, error) {
	if len(b) < 2 {
		return Auth{}, 0, ErrNeedMoreData
	}
	if b[0] != UserPassVersion {
		return Auth{}, 0, fmt.Errorf("%w: auth version %#02x", ErrVersionMismatch, b[0])
	}

	ulen := int(b[1])
	if len(b) < 2+ulen+1 {
		return Auth{}, 0, ErrNeedMoreData
	}
	plen := int(b[2+ulen])
	n := 3 + ulen + plen
	if len(b) < n {
		return Auth{}, 0, ErrNeedMoreData
	}

	return Auth{
		Username: string(b[2 : 2+ulen]),
		Password: string(b[3+ulen : n]),
	}, n, nil
}

// AuthReply returns the sub-negotiation status frame.
func AuthReply(ok bool) []byte {
	status := txsocks5.UserPassStatusFailure
	if ok {
		status = txsocks5.UserPassStatusSuccess
	}
	var buf bytes.Buffer
	_, _ = txsocks5.NewUserPassNegotiationReply(status).WriteTo(&buf)
	return buf.Bytes()
}

// Request is a parsed SOCKS5 request.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Request struct {
	Command     byte
	AddressType byte
	Host        string
	Port        uint16
}

// Address returns host:port suitable for dialing.
func (r Request) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// ParseConnectRequest parses a CONNECT request at the start of b. The
// reserved byte is ignored. Any command other than CONNECT yields
// ErrUnsupportedCommand.
func ParseConnectRequest(b []byte) (Request, int, error) {
	if len(b) < 4 {
		return Request{}, 0, ErrNeedMoreData
	}
	if b[0] != Version {
		return Request{}, 0, fmt.Errorf("%w: request version %#02x", ErrVersionMismatch, b[0])
	}

	req := Request{Command: b[1], AddressType: b[3]}
	if req.Command != CmdConnect {
		return Request{}, 0, fmt.Errorf("%w: %#02x", ErrUnsupportedCommand, req.Command)
	}

	off := 4
	switch req.AddressType {
	case ATYPIPv4:
		if len(b) < off+net.IPv4len+2 {
			return Request{}, 0, ErrNeedMoreData
		}
		req.Host = netip.AddrFrom4([4]byte(b[off : off+net.IPv4len])).String()
		off += net.IPv4len
	case ATYPDomain:
		if len(b) < off+1 {
			return Request{}, 0, ErrNeedMoreData
		}
		dlen := int(b[off])
		off++
		if len(b) < off+dlen+2 {
			return Request{}, 0, ErrNeedMoreData
		}
		if dlen == 0 {
			return Request{}, 0, fmt.Errorf("%w: empty domain name", ErrMalformedFrame)
		}
		req.Host = string(b[off : off+dlen])
		off += dlen
	case ATYPIPv6:
		if len(b) < off+net.IPv6len+2 {
			return Request{}, 0, ErrNeedMoreData
		}
		req.Host = netip.AddrFrom16([16]byte(b[off : off+net.IPv6len])).String()
		off += net.IPv6len
	default:
		return Request{}, 0, fmt.Errorf("%w: %#02x", ErrUnsupportedAddressType, req.AddressType)
	}

	req.Port = binary.BigEndian.Uint16(b[off : off+2])
	off += 2

	return req, off, nil
}

// ConnectReply returns a reply frame. The bound address is always encoded as
// IPv4; an address of any other family is reported as 0.0.0.0.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   |    4     |    2     |
//	+----+-----+-------+------+----------+----------+
func ConnectReply(rep byte, bound netip.AddrPort) []byte {
	ip := netip.IPv4Unspecified()
	if a := bound.Addr().Unmap(); a.Is4() {
		ip = a
	}
	addr := ip.As4()
	port := binary.BigEndian.AppendUint16(nil, bound.Port())

	var buf bytes.Buffer
	_, _ = txsocks5.NewReply(rep, ATYPIPv4, addr[:], port).WriteTo(&buf)
	return buf.Bytes()
}

// FailureReply returns a general-failure reply bound to 0.0.0.0:0.
func FailureReply() []byte {
	return ConnectReply(RepGeneralFailure, netip.AddrPort{})
}
