// Package dialer opens the outbound side of a proxied connection.
//
// A Dialer connects either directly to the target, resolving domain names
// with a Resolver first, or through an upstream SOCKS5 proxy. Literal IPv4
// and IPv6 hosts are dialed without a lookup. Connects are not retried.
package dialer
