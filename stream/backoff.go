package stream

import (
	"context"
	"time"
)

// Backoff is an exponential retry schedule.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        1 * time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay is the wait before the given 1-based attempt: Base doubled per
// previous attempt, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
