// Package retry implements bounded retry with a constant inter-attempt delay.
//
// The delay is deliberately constant rather than exponential: the main
// consumer is gas lease acquisition against a small fixed pool, where waiting
// a steady half second per attempt matches the pool's turnover rate.
package retry

import (
	"context"
	"time"
)

// Options bound a retry loop.
type Options struct {
	// Attempts is the number of retries after the first try, so an operation
	// runs at most Attempts+1 times.
	Attempts int
	// Delay is slept between attempts.
	Delay time.Duration
}

// Do invokes op until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. The last error is returned verbatim.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.Attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == opts.Attempts {
			break
		}
		if err := sleep(ctx, opts.Delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
