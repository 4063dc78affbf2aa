package reconcile

import (
	"context"
	"time"
)

// RetryPolicy bounds how often one record is submitted within a run.
// Delay(n) is the pause after failed attempt n (1-based).
type RetryPolicy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Delay:       FixedDelay(5 * time.Second),
}

func FixedDelay(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Delay == nil {
		return 0
	}
	return p.Delay(attempt)
}

// Clock waits between attempts. Tests swap in a fake.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
