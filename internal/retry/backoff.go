// Package retry paces reconnect attempts: an exponential backoff
// between sessions and a circuit breaker that stops hammering a debug
// endpoint that keeps refusing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that another attempt will not
// help (bad credentials, malformed endpoint, user cancel).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ResetError wraps a failure that followed a success of sorts (a session
// that attached and later dropped).  It is always retried and restarts
// the attempt budget and the delay schedule.
type ResetError struct {
	Err error
}

func (e *ResetError) Error() string { return e.Err.Error() }
func (e *ResetError) Unwrap() error { return e.Err }

// Reset marks err as the first failure of a new streak.
func Reset(err error) error {
	if err == nil {
		return nil
	}
	return &ResetError{Err: err}
}

// IsReset reports whether err has been marked with [Reset].
func IsReset(err error) bool {
	var re *ResetError
	return errors.As(err, &re)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff is an exponential delay schedule with optional jitter.
type Backoff struct {
	// InitialDelay is the delay before the second attempt (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps the delay (default 60s).
	MaxDelay time.Duration
	// Multiplier grows the delay each attempt (default 2.0).
	Multiplier float64
	// MaxAttempts is the number of consecutive failed tries allowed,
	// counted since the start or the last [Reset] error.  Zero means
	// unlimited (until the context ends).
	MaxAttempts int
	// Jitter adds ±25% randomisation.
	Jitter bool

	// Retryable classifies failures; a false answer stops the loop with
	// that error.  Nil treats every non-permanent error as retryable.
	Retryable func(err error) bool

	// OnRetry runs before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff returns the reconnect schedule used by the CLI.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// Delay returns the un-jittered wait after the given failed attempt
// (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if d > float64(maxDelay) || math.IsInf(d, 0) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, fails permanently, fails with an error
// Retryable rejects, or the attempt budget or context runs out.  The
// attempt number passed to fn is 1-based and never resets.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	failures := 0
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if IsReset(err) {
			failures = 0
		} else if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		failures++
		if b.MaxAttempts > 0 && failures >= b.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", b.MaxAttempts, err)
		}

		wait := b.Delay(failures)
		if b.Jitter {
			wait = addJitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("reconnect cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
