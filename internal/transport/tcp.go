package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	ncerr "vmconn/internal/errors"
)

// TCPDialer connects straight to a debug port, optionally binding to a
// specific source port.
type TCPDialer struct {
	Timeout   time.Duration
	LocalPort int // optional source-port binding (0 = ephemeral)
}

// Dial connects to address over TCP and frames the stream as lines.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Link, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.LocalPort > 0 {
		a, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", d.LocalPort))
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, ncerr.Wrap("dial", address, err)
	}
	return NewStreamLink(conn), nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
