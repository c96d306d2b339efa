package core

import (
	"context"
	"errors"
	"time"
)

// ErrRetryExhausted is returned when every attempt reported not-ready.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy bounds Retry. Delay grows by Multiplier after each attempt
// (a Multiplier below 1 keeps it fixed).
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is 8 attempts with a fixed 150ms gap.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 8, Delay: 150 * time.Millisecond, Multiplier: 1}

// Retry calls fn until it reports done, returns an error, the attempts run
// out, or ctx ends. It returns the number of attempts made.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (bool, error)) (int, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.Delay

	for i := 1; i <= attempts; i++ {
		done, err := fn(ctx)
		if err != nil {
			return i, err
		}
		if done {
			return i, nil
		}
		if i == attempts {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return i, ctx.Err()
		case <-t.C:
		}

		if policy.Multiplier > 1 {
			delay = time.Duration(float64(delay) * policy.Multiplier)
		}
	}

	return attempts, ErrRetryExhausted
}
