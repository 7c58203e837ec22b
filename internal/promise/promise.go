// Package promise provides a single-resolution promise.
//
// A Promise settles exactly once, either done or rejected.  Callbacks
// registered before settlement run during the settling call, in
// registration order; callbacks registered afterwards run inline.  Either
// way each callback runs exactly once.  Sessions use a Promise as their
// start gate and hand one out as the detach future.
package promise

import (
	"context"
	"sync"

	ncerr "vmconn/internal/errors"
)

type outcome int

const (
	pending outcome = iota
	done
	rejected
)

// Promise is a one-shot done/rejected signal.  The zero value is not
// usable; create one with [New], [Resolved] or [Rejected].
type Promise struct {
	mu        sync.Mutex
	outcome   outcome
	err       error
	callbacks []func(error)
	settled   chan struct{}
}

// New returns a pending promise.
func New() *Promise {
	return &Promise{settled: make(chan struct{})}
}

// Resolved returns a promise that is already done.
func Resolved() *Promise {
	p := New()
	p.Resolve()
	return p
}

// Rejected returns a promise that is already rejected with err.
func Rejected(err error) *Promise {
	p := New()
	p.Reject(err)
	return p
}

// Resolve settles the promise as done.  It reports whether this call
// settled it; a promise that already settled is left untouched.
func (p *Promise) Resolve() bool {
	return p.settle(done, nil)
}

// Reject settles the promise as rejected.  A nil err becomes
// [ncerr.ErrRejected].  It reports whether this call settled it.
func (p *Promise) Reject(err error) bool {
	if err == nil {
		err = ncerr.ErrRejected
	}
	return p.settle(rejected, err)
}

func (p *Promise) settle(o outcome, err error) bool {
	p.mu.Lock()
	if p.outcome != pending {
		p.mu.Unlock()
		return false
	}
	p.outcome = o
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.settled)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
	return true
}

// OnResolved registers fn to run once the promise settles.  fn receives
// nil when done and the rejection error otherwise.
func (p *Promise) OnResolved(fn func(err error)) {
	p.mu.Lock()
	if p.outcome == pending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	err := p.err
	p.mu.Unlock()
	fn(err)
}

// OnDone registers fn to run only if the promise is resolved as done.
func (p *Promise) OnDone(fn func()) {
	p.OnResolved(func(err error) {
		if err == nil {
			fn()
		}
	})
}

// OnRejected registers fn to run only if the promise is rejected.
func (p *Promise) OnRejected(fn func(err error)) {
	p.OnResolved(func(err error) {
		if err != nil {
			fn(err)
		}
	})
}

// IsProcessed reports whether the promise has settled either way.
func (p *Promise) IsProcessed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome != pending
}

// IsDone reports whether the promise resolved as done.
func (p *Promise) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome == done
}

// IsRejected reports whether the promise was rejected.
func (p *Promise) IsRejected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome == rejected
}

// Err returns the rejection error, or nil while pending or when done.
func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done returns a channel closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.settled
}

// Wait blocks until the promise settles or ctx ends.  It returns the
// rejection error, or ctx.Err() if the context ended first.
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.settled:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
