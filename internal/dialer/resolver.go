package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// ErrNotResolved is returned when a name has no usable address.
var ErrNotResolved = errors.New("name not resolved")

// Resolver maps a domain name to a single address.
type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

type systemResolver struct {
	r *net.Resolver
}

// NewSystemResolver returns a Resolver backed by the operating system's name
// resolution.
func NewSystemResolver() Resolver {
	return systemResolver{r: net.DefaultResolver}
}

func (s systemResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotResolved, host)
	}
	return addrs[0].Unmap(), nil
}

// DNSResolver queries a single DNS server directly, asking for A records and
// then AAAA records.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver returns a resolver that sends queries to server over UDP.
// Port 53 is used when server has none.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *DNSResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	err := fmt.Errorf("%w: %s", ErrNotResolved, host)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addr, rcode, qerr := r.query(ctx, host, qtype)
		if qerr == nil {
			return addr, nil
		}
		err = qerr
		if rcode == dns.RcodeNameError {
			break
		}
	}
	return netip.Addr{}, err
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) (netip.Addr, int, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], host, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, in.Rcode, fmt.Errorf("%w: %s %s: %s", ErrNotResolved, dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		var ip net.IP
		switch rr := rr.(type) {
		case *dns.A:
			ip = rr.A
		case *dns.AAAA:
			ip = rr.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			return addr.Unmap(), in.Rcode, nil
		}
	}

	return netip.Addr{}, in.Rcode, fmt.Errorf("%w: %s %s: no answer", ErrNotResolved, dns.TypeToString[qtype], host)
}
