package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/remote"
	"vmconn/internal/session"
	"vmconn/util"
)

// Relay forwards local input to the remote process, one message per
// line, while the attachment lasts.  Local EOF stops the forwarding
// but not the attachment.
type Relay struct {
	// Stdin defaults to os.Stdin when nil.
	Stdin  io.Reader
	Logger *util.Logger
}

// Handle relays lines until the attachment ends.
func (r *Relay) Handle(ctx context.Context, sess *session.Session, vm *remote.VM) error {
	in := r.Stdin
	if in == nil {
		in = os.Stdin
	}

	relayed := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64<<10), 4<<20)
		for sc.Scan() {
			msg := append([]byte(nil), sc.Bytes()...)
			if err := vm.Send(msg); err != nil {
				relayed <- err
				return
			}
		}
		relayed <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case <-vm.Done():
			return linkEnded(vm)
		case err := <-relayed:
			relayed = nil
			switch {
			case err == nil:
				r.Logger.Verbose("relay: local input closed")
			case ncerr.Is(err, ncerr.ErrNotConnected):
				// The link is going away; vm.Done reports it.
			default:
				return fmt.Errorf("relay: %w", err)
			}
		}
	}
}
