package provider

import (
	"context"
	"math/rand"
	"time"
)

// BackoffStrategy defines how long to wait before a retry.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff waits Base*Factor^attempt, capped at Max, with +/- Jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff suits the public EBI services: 200ms, 400ms, 800ms ... capped at 3s.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   200 * time.Millisecond,
		Max:    3 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait before retry number attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt && delay < float64(b.Max); i++ {
		delay *= b.Factor
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// ConstantBackoff always waits the same duration. Zero disables waiting.
type ConstantBackoff time.Duration

func (c ConstantBackoff) Next(int) time.Duration { return time.Duration(c) }

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
