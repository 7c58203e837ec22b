// Package capability defines what happens while a session is attached.
// Each Capability encapsulates one behaviour (watch the remote output,
// relay local input, drive a helper program) and works against the
// session and its remote handle rather than a raw link, which keeps
// capabilities testable and decoupled from transport details.
package capability

import (
	"context"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/remote"
	"vmconn/internal/session"
)

// Capability runs for the lifetime of one attachment.
type Capability interface {
	// Handle blocks until the capability is finished, the session
	// closes, the link ends or ctx is cancelled.  It returns
	// ErrRemoteDisconnected when the link ended underneath it.
	Handle(ctx context.Context, sess *session.Session, vm *remote.VM) error
}

// Watch observes the session without sending anything.  Output is
// reported by whatever debug listeners the caller registered.
type Watch struct{}

// Handle waits for the attachment to end.
func (Watch) Handle(ctx context.Context, sess *session.Session, vm *remote.VM) error {
	return waitEnd(ctx, sess, vm)
}

// waitEnd blocks until ctx ends, the session closes or the link drops.
func waitEnd(ctx context.Context, sess *session.Session, vm *remote.VM) error {
	select {
	case <-ctx.Done():
		return nil
	case <-sess.Done():
		return nil
	case <-vm.Done():
		return linkEnded(vm)
	}
}

func linkEnded(vm *remote.VM) error {
	if err := vm.Err(); err != nil {
		return ncerr.Join(ncerr.ErrRemoteDisconnected, err)
	}
	return ncerr.ErrRemoteDisconnected
}
