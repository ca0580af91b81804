package notify

import (
	"context"
	"time"
)

// RetryPolicy is an explicit retry schedule. Attempts run strictly
// sequentially; only transient failures are retried.
type RetryPolicy struct {
	Backoff []time.Duration
	Sleep   func(context.Context, time.Duration) error
}

// DefaultRetryPolicy retries twice with 1s then 2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: []time.Duration{time.Second, 2 * time.Second}}
}

// MaxAttempts is the total attempt count, first try included.
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Backoff) + 1
}

// Execute runs fn until it succeeds, fails permanently, exhausts the schedule
// or the context expires. It returns the number of attempts made and the last
// error.
func (p RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !IsTransient(err) {
			return attempts, err
		}
		if attempts > len(p.Backoff) {
			return attempts, err
		}
		if sleepErr := sleep(ctx, p.Backoff[attempts-1]); sleepErr != nil {
			return attempts, err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
