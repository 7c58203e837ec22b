package session

import "vmconn/internal/promise"

// VM is the handle of an attached remote process.  The session owns it
// while attached and calls Detach at most once.
type VM interface {
	// Detach asks the remote side to let go of the process.  The returned
	// promise resolves when the remote side confirms, or right away when
	// no confirmation is possible.
	Detach() *promise.Promise
}
