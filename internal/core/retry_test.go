package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	t.Run("stops when done", func(t *testing.T) {
		calls := 0
		n, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}, func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		if err != nil || n != 3 {
			t.Errorf("Retry = %d, %v; want 3, nil", n, err)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		n, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		if !errors.Is(err, ErrRetryExhausted) || n != 3 {
			t.Errorf("Retry = %d, %v; want 3, ErrRetryExhausted", n, err)
		}
	})

	t.Run("error stops immediately", func(t *testing.T) {
		boom := errors.New("boom")
		n, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, func(ctx context.Context) (bool, error) {
			return false, boom
		})
		if !errors.Is(err, boom) || n != 1 {
			t.Errorf("Retry = %d, %v; want 1, boom", n, err)
		}
	})

	t.Run("context cancelled during delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		n, err := Retry(ctx, RetryPolicy{MaxAttempts: 5, Delay: time.Second}, func(ctx context.Context) (bool, error) {
			cancel()
			return false, nil
		})
		if !errors.Is(err, context.Canceled) || n != 1 {
			t.Errorf("Retry = %d, %v; want 1, context.Canceled", n, err)
		}
	})

	t.Run("zero attempts runs once", func(t *testing.T) {
		calls := 0
		_, _ = Retry(context.Background(), RetryPolicy{}, func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
