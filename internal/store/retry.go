package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the gateway's handling of transient store faults.
// Retries happen here and nowhere above: business logic never re-issues a
// failed store call itself.
type RetryPolicy struct {
	MaxAttempts  uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy is tuned for a store reachable over a local network.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry runs fn under the gateway's retry policy. Transient faults are
// retried with exponential backoff; everything else fails the first time.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retry.InitialDelay
	bo.MaxInterval = g.retry.MaxDelay
	bo.Multiplier = g.retry.Multiplier

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.retry.MaxAttempts-1), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, delay time.Duration) {
		g.logger.Warn("retrying store operation", "op", op, "delay", delay, "error", err)
	})
}
