// Package dispose models lifetimes explicitly.  A Scope collects teardown
// hooks and runs them once when it is disposed; listener registries hang
// their "remove me" hook on the subscriber's scope, so ending the scope
// unregisters the listener without any global tree.
package dispose

import (
	"sync"

	"vmconn/util"
)

type hook struct {
	fn      func()
	removed bool
}

// Scope is a disposal lifetime.  All methods are safe for concurrent use.
type Scope struct {
	mu       sync.Mutex
	hooks    []*hook
	disposed bool
	done     chan struct{}
	logger   *util.Logger
}

// NewScope returns a live scope.  logger may be nil; it only reports
// hooks that panic.
func NewScope(logger *util.Logger) *Scope {
	return &Scope{done: make(chan struct{}), logger: logger}
}

// OnDispose registers fn to run when the scope is disposed.  If the scope
// is already disposed fn runs immediately.  The returned cancel removes
// the hook without running it.
func (s *Scope) OnDispose(fn func()) (cancel func()) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.run(fn)
		return func() {}
	}
	h := &hook{fn: fn}
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		h.removed = true
		for i, other := range s.hooks {
			if other == h {
				s.hooks = append(s.hooks[:i:i], s.hooks[i+1:]...)
				break
			}
		}
	}
}

// NewChild returns a scope disposed together with s.  Disposing the
// child first detaches it from s.
func (s *Scope) NewChild() *Scope {
	child := NewScope(s.logger)
	cancel := s.OnDispose(child.Dispose)
	child.OnDispose(cancel)
	return child
}

// Dispose runs every registered hook, most recent first.  Only the first
// call does anything.  Hooks cancelled while Dispose runs are skipped.
func (s *Scope) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	hooks := s.hooks
	s.hooks = nil
	close(s.done)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		s.mu.Lock()
		h := hooks[i]
		skip := h.removed
		s.mu.Unlock()
		if !skip {
			s.run(h.fn)
		}
	}
}

// IsDisposed reports whether Dispose has been called.
func (s *Scope) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Done returns a channel closed when the scope is disposed.
func (s *Scope) Done() <-chan struct{} {
	return s.done
}

func (s *Scope) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispose hook panicked: %v", r)
		}
	}()
	fn()
}
