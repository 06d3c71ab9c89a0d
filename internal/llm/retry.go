package llm

import (
	"context"
	"time"
)

// Default backoff parameters.
const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 10 * time.Second
)

// Backoff computes exponential delays with multiplier 2 and a per-attempt cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the n-th failed attempt (1-based):
// min(Base*2^(n-1), Max).
func (b Backoff) Delay(n int) time.Duration {
	base, maxDelay := b.Base, b.Max
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Retrier runs an operation up to a fixed number of attempts.
type Retrier struct {
	Backoff Backoff

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, c Classification, delay time.Duration)
}

// Do calls op until it succeeds, fails with a terminal error, or
// maxAttempts attempts have been made. The last error is returned.
func (r Retrier) Do(ctx context.Context, op func(ctx context.Context) error, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		c := Classify(err)
		if !c.Retryable || attempt == maxAttempts {
			return err
		}
		delay := r.Backoff.Delay(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, err, c, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return err
}

// Retry runs op with the default backoff.
func Retry(ctx context.Context, op func(ctx context.Context) error, maxAttempts int) error {
	return Retrier{}.Do(ctx, op, maxAttempts)
}

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
