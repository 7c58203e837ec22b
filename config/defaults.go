package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds dialing the debug endpoint or gateway.
	DefaultConnTimeout = 30 * time.Second

	// DefaultDetachTimeout is how long a detach waits for the remote
	// side to acknowledge before the link is dropped.
	DefaultDetachTimeout = 5 * time.Second

	// DefaultPingInterval is the WebSocket keepalive period.
	DefaultPingInterval = 30 * time.Second

	// DefaultMaxRetries is how many sessions --reconnect attempts.
	DefaultMaxRetries = 10

	// DefaultInitialBackoff is the first wait between reconnects.
	DefaultInitialBackoff = 1 * time.Second

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 30 * time.Second

	// DefaultBreakerFailures is the number of consecutive failed
	// sessions that opens the reconnect circuit.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long the reconnect circuit stays open.
	DefaultBreakerReset = 30 * time.Second
)

// EnvPrefix prefixes every supported environment variable.
const EnvPrefix = "VMCONN_"
