package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"testing"

	"golang.org/x/sync/errgroup"
)

// readFrame reads from r one byte at a time until parse accepts the buffer.
func readFrame[T any](r io.Reader, parse func([]byte) (T, int, error)) (T, error) {
	var buf []byte
	one := make([]byte, 1)
	for {
		v, _, err := parse(buf)
		if !errors.Is(err, ErrNeedMoreData) {
			return v, err
		}
		if _, err := io.ReadFull(r, one); err != nil {
			return v, err
		}
		buf = append(buf, one[0])
	}
}

func serveOne(conn net.Conn, creds Auth, rep byte) error {
	sel, err := readFrame(conn, ParseMethodSelection)
	if err != nil {
		return err
	}

	if creds.Username == "" {
		_, err = conn.Write(MethodSelectionReply(MethodNone))
		if err != nil {
			return err
		}
	} else {
		if !sel.Offers(MethodUsernamePassword) {
			_, _ = conn.Write(MethodSelectionReply(MethodNoAcceptable))
			return ErrNoAcceptableMethod
		}
		if _, err := conn.Write(MethodSelectionReply(MethodUsernamePassword)); err != nil {
			return err
		}
		got, err := readFrame(conn, ParseUserPassAuth)
		if err != nil {
			return err
		}
		ok := creds.Match(got.Username, got.Password)
		if _, err := conn.Write(AuthReply(ok)); err != nil {
			return err
		}
		if !ok {
			return ErrAuthenticationFailed
		}
	}

	req, err := readFrame(conn, ParseConnectRequest)
	if err != nil {
		return err
	}
	if req.Address() != "example.com:443" {
		return fmt.Errorf("unexpected address %q", req.Address())
	}
	_, err = conn.Write(ConnectReply(rep, netip.MustParseAddrPort("127.0.0.1:12345")))
	return err
}

func TestClientHandshake(t *testing.T) {
	tests := []struct {
		name       string
		server     Auth
		client     Auth
		rep        byte
		wantErr    error
		wantServer error
	}{
		{name: "no_auth", rep: RepSuccess},
		{
			name:   "user_pass",
			server: Auth{Username: "user", Password: "pass"},
			client: Auth{Username: "user", Password: "pass"},
			rep:    RepSuccess,
		},
		{
			name:       "bad_password",
			server:     Auth{Username: "user", Password: "pass"},
			client:     Auth{Username: "user", Password: "nope"},
			wantErr:    ErrAuthenticationFailed,
			wantServer: ErrAuthenticationFailed,
		},
		{
			name:    "client_has_no_credentials",
			server:  Auth{Username: "user", Password: "pass"},
			wantErr: ErrNoAcceptableMethod,
			// The client only offers no-auth, so the server refuses.
			wantServer: ErrNoAcceptableMethod,
		},
		{name: "rejected", rep: RepGeneralFailure, wantErr: ErrRequestRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				defer serverConn.Close()
				return serveOne(serverConn, tt.server, tt.rep)
			})

			err := ClientHandshake(clientConn, tt.client, "example.com:443")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("client err=%v want %v", err, tt.wantErr)
			}
			_ = clientConn.Close()

			if err := g.Wait(); !errors.Is(err, tt.wantServer) {
				t.Fatalf("server err=%v want %v", err, tt.wantServer)
			}
		})
	}
}
