// Package retry provides the Ingester's bulk-insert retry policy: three
// attempts with an exponential base-2s/factor-2 backoff, matching the
// reference implementation's hand-rolled loop but expressed atop a real
// backoff library instead of a sleep loop.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// InsertPolicy returns a backoff.BackOff configured for 3 attempts (the
// initial try plus 2 retries) with a 2s initial interval doubling each time,
// bounded by ctx's cancellation.
func InsertPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock time
	bounded := backoff.WithMaxRetries(b, 2)
	return backoff.WithContext(bounded, ctx)
}

// Do runs fn under InsertPolicy, calling onRetry (if non-nil) before each
// sleep between attempts so the caller can log a warning with the attempt
// number, mirroring the reference server's retry log lines.
func Do(ctx context.Context, fn func() error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempt := 0
	policy := InsertPolicy(ctx)
	op := func() error {
		attempt++
		return fn()
	}
	notify := func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}
	return backoff.RetryNotify(op, policy, notify)
}
