// Package retry runs an operation under a bounded retry policy.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff returns how long to wait before the given attempt (1-based, >= 2).
type Backoff func(attempt int) time.Duration

// Policy describes how many times an operation runs and which failures are
// worth another attempt. A nil Retryable retries nothing.
type Policy struct {
	MaxAttempts int
	Retryable   func(error) bool
	Backoff     Backoff
}

// Once runs the operation a single time.
var Once = Policy{MaxAttempts: 1}

// Do runs fn until it succeeds, fails with a non-retryable error, the attempts
// are used up or ctx is done. The last error is returned wrapped so callers can
// still match it with errors.Is / errors.As.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			if werr := wait(ctx, p.Backoff(attempt)); werr != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt-1, err)
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exponential doubles base for every attempt after the second, capped at max,
// with up to 20% random jitter.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 2; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		if d <= 0 {
			return 0
		}
		jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
		return d + jitter
	}
}

func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}
