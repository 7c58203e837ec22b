package core

import (
	"context"
	"time"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/metrics"
	"vmconn/internal/retry"
	"vmconn/util"
)

// ReconnectMode keeps a debug endpoint attached across link losses.
// Every attempt is a fresh session; a session that ended is never
// reused.  Attempts are paced by Backoff and short-circuited by Breaker
// while the endpoint keeps refusing.
type ReconnectMode struct {
	Attach  *AttachMode
	Backoff *retry.Backoff
	Breaker *retry.CircuitBreaker
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Run attaches until the user cancels, a session ends without losing
// its link, or the retry budget runs out.  The budget counts consecutive
// failed attempts; a session that attached starts a fresh one.
func (m *ReconnectMode) Run(ctx context.Context) error {
	defer m.Attach.Dialer.Close()

	b := *m.Backoff
	b.Retryable = func(err error) bool {
		return ncerr.IsRetryable(err) || ncerr.Is(err, ncerr.ErrCircuitOpen)
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Metrics.Reconnect()
		m.Logger.Info("session ended (%v); reconnecting in %v", err, wait.Round(time.Millisecond))
	}

	err := b.Do(ctx, func(attempt int) error {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		if attempt > 1 {
			m.Logger.Verbose("attempt %d", attempt)
		}

		var sessionErr error
		var attached bool
		breakerErr := m.Breaker.Execute(func() error {
			connected, err := m.Attach.runOnce(ctx)
			sessionErr, attached = err, connected
			if connected {
				return nil // the endpoint answered; losing it later is not its failure
			}
			return err
		})
		if breakerErr != nil {
			return breakerErr
		}
		if attached && sessionErr != nil {
			return retry.Reset(sessionErr)
		}
		return sessionErr
	})

	if ctx.Err() != nil {
		// Cancelled by the user: the last session already detached.
		return nil
	}
	return err
}
