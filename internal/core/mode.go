// Package core is the orchestration layer.  It composes transports,
// remote handles and capabilities into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  remote  →  session  →  capability  →  core  →  cmd (CLI)
//
// A mode drives a session's lifecycle: it moves the session through
// Connecting and Connected, attaches the remote handle, opens the start
// gate and tears the session down with a detach or a plain close.
package core

import "context"

// Mode is a complete way of running vmconn (single attach, or attach
// with reconnects).  Each mode owns its full lifecycle from dialing to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}
