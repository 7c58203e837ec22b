package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"vmconn/tunnel"
	"vmconn/util"
)

// SSHDialer routes links through an SSH tunnel.  The tunnel is connected
// lazily on the first Dial and re-established when it has dropped, so a
// reconnecting caller gets a fresh gateway connection for free.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	logger *util.Logger
	label  string
	mu     sync.Mutex
}

// NewSSHDialer creates a dialer that forwards links through an SSH
// tunnel to cfg's gateway.  Nothing is dialed until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	d := NewTunnelDialer(tunnel.NewSSHTunnel(cfg, logger), logger)
	d.label = fmt.Sprintf("%s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	return d
}

// NewTunnelDialer wraps an arbitrary tunnel implementation.
func NewTunnelDialer(t tunnel.Tunnel, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tunnel: t, logger: logger, label: "gateway"}
}

// connect establishes the tunnel unless it is already up.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel to %s", d.label)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// NetDial opens a raw connection through the tunnel, which makes the
// dialer usable as [WSDialer.Via].
func (d *SSHDialer) NetDial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Dial connects to address through the SSH tunnel, framing the
// forwarded stream as lines.
func (d *SSHDialer) Dial(ctx context.Context, address string) (Link, error) {
	conn, err := d.NetDial(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewStreamLink(conn), nil
}

// Lost passes through the tunnel's loss signal.
func (d *SSHDialer) Lost() <-chan struct{} { return d.tunnel.Lost() }

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
