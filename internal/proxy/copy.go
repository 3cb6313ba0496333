package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RelayStats counts bytes forwarded in each direction.
type RelayStats struct {
	ClientToTarget int64
	TargetToClient int64
}

// Relay copies client to target and target to client concurrently. pending is
// written to target before anything else read from client. When either
// direction ends, by EOF or error, both connections are closed, which ends the
// other direction too. Canceling ctx closes both.
//
// Writes block until the peer accepts them; nothing is dropped.
func Relay(ctx context.Context, client, target net.Conn, pending []byte) (RelayStats, error) {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = target.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var stats RelayStats
	g := errgroup.Group{}

	g.Go(func() error {
		defer closeBoth()
		if len(pending) > 0 {
			n, err := target.Write(pending)
			stats.ClientToTarget += int64(n)
			if err != nil {
				return relayError("write target", err)
			}
		}
		n, err := io.Copy(target, client)
		stats.ClientToTarget += n
		return relayError("client to target", err)
	})

	g.Go(func() error {
		defer closeBoth()
		n, err := io.Copy(client, target)
		stats.TargetToClient = n
		return relayError("target to client", err)
	})

	err := g.Wait()
	return stats, err
}

// relayError drops the errors caused by our own close of the other side.
func relayError(dir string, err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrChannel, dir, err)
}
