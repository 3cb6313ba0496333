// Package proxy implements the socksgate SOCKS5 listener.
//
// Each accepted connection gets its own session goroutine that drives the
// handshake state machine (method selection, username/password, CONNECT) over
// an accumulating input buffer, dials the target, and then relays bytes in
// both directions until either side closes.
package proxy
