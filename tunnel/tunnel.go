// Package tunnel carries debug links through an SSH gateway, for remote
// processes that only listen on a loopback interface of a far host.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which TCP connections to the
// debug port can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel.
	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool

	// Lost returns a channel closed when the current gateway connection
	// drops.  It is replaced on every successful Connect.
	Lost() <-chan struct{}
}
