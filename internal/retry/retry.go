// Package retry wraps network-facing writes in an exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/printrelay/backend/internal/faults"
)

// Policy configures Execute.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy is used for fragment and manifest writes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  6,
		InitialDelay: 500 * time.Millisecond,
		Factor:       2,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1)))
}

// Execute runs op until it succeeds, the attempts are exhausted, or op fails
// with an error that faults classifies as not retryable. The error of the last
// attempt is returned unchanged.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	var lastErr error
	var backoff goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, lastErr)
		}
		return d, false
	})
	backoff = goretry.WithMaxRetries(uint64(maxAttempts-1), backoff)

	var result T
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err != nil {
			lastErr = err
			if faults.IsRetryable(err) {
				return goretry.RetryableError(err)
			}
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Do is Execute for operations without a result.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
