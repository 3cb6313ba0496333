// Package socks5 implements the SOCKS5 wire frames spoken by socksgate.
//
// The server side is a set of pure parse and serialize functions over byte
// slices (RFC 1928 method selection and CONNECT, RFC 1929 username/password
// sub-negotiation). Parsers never consume a partial frame: when the input
// holds fewer bytes than the frame needs they return ErrNeedMoreData and the
// caller appends the next chunk and parses again from the same offset.
//
// Reply framing and protocol constants come from github.com/txthinking/socks5.
// The package also carries a small blocking client used for SOCKS5 upstreams.
package socks5
