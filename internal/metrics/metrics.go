// Package metrics provides lock-free counters describing the sessions a
// vmconn process has run: how many were opened, how they ended, how many
// status transitions and debug events flowed through them, and how often
// observers or the transport misbehaved.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks session lifecycle metrics.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	teardowns        atomic.Int64
	detaches         atomic.Int64
	detachFailures   atomic.Int64
	statusChanges    atomic.Int64
	debugEvents      atomic.Int64
	listenerFailures atomic.Int64
	reconnects       atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session lifecycle ────────────────────────────────────────────────

// SessionOpened counts a newly constructed session.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed counts a completed teardown.  Only the goroutine that won
// the close race calls it, so it fires once per session.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
	c.teardowns.Add(1)
}

// ActiveSessions returns the number of sessions not yet torn down.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// Teardowns returns the number of completed teardowns.
func (c *Collector) Teardowns() int64 {
	if c == nil {
		return 0
	}
	return c.teardowns.Load()
}

// DetachRequested counts a detach sent to an attached remote process.
func (c *Collector) DetachRequested() {
	if c == nil {
		return
	}
	c.detaches.Add(1)
}

// DetachFailed counts a detach future that was rejected.
func (c *Collector) DetachFailed() {
	if c == nil {
		return
	}
	c.detachFailures.Add(1)
}

// Detaches returns the number of detach requests.
func (c *Collector) Detaches() int64 {
	if c == nil {
		return 0
	}
	return c.detaches.Load()
}

// ── Event flow ───────────────────────────────────────────────────────

// StatusChanged counts a dispatched status transition.
func (c *Collector) StatusChanged() {
	if c == nil {
		return
	}
	c.statusChanges.Add(1)
}

// StatusChanges returns the number of dispatched status transitions.
func (c *Collector) StatusChanges() int64 {
	if c == nil {
		return 0
	}
	return c.statusChanges.Load()
}

// DebugEvent counts a debug event fanned out to observers.
func (c *Collector) DebugEvent() {
	if c == nil {
		return
	}
	c.debugEvents.Add(1)
}

// ListenerFailed counts an observer that panicked during dispatch.
func (c *Collector) ListenerFailed() {
	if c == nil {
		return
	}
	c.listenerFailures.Add(1)
}

// ListenerFailures returns the number of isolated observer panics.
func (c *Collector) ListenerFailures() int64 {
	if c == nil {
		return 0
	}
	return c.listenerFailures.Load()
}

// ── Transport ────────────────────────────────────────────────────────

// Reconnect counts a new session started after a previous one ended.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the reconnect count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Teardowns        int64  `json:"teardowns"`
	Detaches         int64  `json:"detaches"`
	DetachFailures   int64  `json:"detach_failures"`
	StatusChanges    int64  `json:"status_changes"`
	DebugEvents      int64  `json:"debug_events"`
	ListenerFailures int64  `json:"listener_failures"`
	Reconnects       int64  `json:"reconnects"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		Teardowns:        c.teardowns.Load(),
		Detaches:         c.detaches.Load(),
		DetachFailures:   c.detachFailures.Load(),
		StatusChanges:    c.statusChanges.Load(),
		DebugEvents:      c.debugEvents.Load(),
		ListenerFailures: c.listenerFailures.Load(),
		Reconnects:       c.reconnects.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
