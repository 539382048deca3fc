package backend

import (
	"context"
	"time"
)

// Retrier re-runs a call after transient failures with a linearly growing
// delay: Delay before the first retry, 2*Delay before the second.
type Retrier struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetrier allows two retries, one and two seconds apart.
func DefaultRetrier() Retrier {
	return Retrier{MaxRetries: 2, Delay: time.Second}
}

// Do runs fn until it succeeds, fails permanently, ctx ends, or MaxRetries
// retries have been spent. onRetry, when set, is called before each retry
// with the 1-based retry number. It returns the number of attempts made.
func (r Retrier) Do(ctx context.Context, fn func(context.Context) error, onRetry func(attempt, limit int)) (int, error) {
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil || !IsTransient(err) || attempts > r.MaxRetries {
			return attempts, err
		}
		if onRetry != nil {
			onRetry(attempts, r.MaxRetries)
		}
		t := time.NewTimer(time.Duration(attempts) * r.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempts, ctx.Err()
		case <-t.C:
		}
	}
}
