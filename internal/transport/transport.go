// Package transport opens the message links a session's remote handle
// speaks over.  A link carries whole messages in both directions and
// supports a half-close so the remote side can acknowledge a detach by
// closing its own half.  What travels over the link is the remote
// package's business.
package transport

import (
	"context"

	ncerr "vmconn/internal/errors"
)

// ErrNoHalfClose is returned by [Link.CloseSend] when the underlying
// connection cannot shut down only its write side.
var ErrNoHalfClose = ncerr.New("transport: half-close not supported")

// Link is a bidirectional message channel to a debuggable process.
type Link interface {
	// Receive blocks for the next message.  It returns io.EOF once the
	// remote side has closed its half of the link.
	Receive() ([]byte, error)

	// Send writes one message.  Safe for concurrent use.
	Send(msg []byte) error

	// CloseSend signals that no more messages will be sent while keeping
	// the receive side open.
	CloseSend() error

	// Close tears down both directions.
	Close() error

	// RemoteAddr describes the far end for logs.
	RemoteAddr() string
}

// Dialer opens links.  Implementations include a plain TCP dialer, an
// SSH-tunnelled dialer and a WebSocket dialer.
type Dialer interface {
	// Dial establishes a link to address.
	Dial(ctx context.Context, address string) (Link, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
