package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if (Backoff{}).Delay(1) != DefaultBaseDelay || (Backoff{}).Delay(50) != DefaultMaxDelay {
		t.Fatalf("zero Backoff should use defaults")
	}
	if b.Delay(0) != time.Second {
		t.Fatalf("Delay(0) should clamp to first attempt")
	}
}

func TestRetrier_SucceedsAfterRetryableFailures(t *testing.T) {
	var delays []time.Duration
	r := Retrier{Backoff: Backoff{Base: time.Second, Max: 10 * time.Second}, Sleep: recordingSleep(&delays)}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &Error{Kind: KindRateLimit}
		}
		return nil
	}, 3)
	if err != nil || calls != 3 {
		t.Fatalf("expected success on 3rd call, got err=%v calls=%d", err, calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestRetrier_AuthShortCircuits(t *testing.T) {
	var delays []time.Duration
	r := Retrier{Sleep: recordingSleep(&delays)}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return &Error{Kind: KindAuth}
	}, 5)
	if !IsAuth(err) || calls != 1 || len(delays) != 0 {
		t.Fatalf("auth must not retry: err=%v calls=%d delays=%v", err, calls, delays)
	}
}

func TestRetrier_LastErrorPropagates(t *testing.T) {
	var delays []time.Duration
	r := Retrier{Sleep: recordingSleep(&delays)}
	calls := 0
	var retried []int
	r.OnRetry = func(attempt int, _ error, c Classification, _ time.Duration) {
		retried = append(retried, attempt)
		if c.Kind != KindAPI {
			t.Fatalf("unexpected kind %s", c.Kind)
		}
	}
	last := errors.New("third")
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("earlier")
	}, 3)
	if !errors.Is(err, last) || calls != 3 {
		t.Fatalf("expected last error after 3 calls, got %v (%d)", err, calls)
	}
	if len(retried) != 2 {
		t.Fatalf("OnRetry called %d times", len(retried))
	}
}

func TestRetrier_StopsWhenSleepInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	boom := errors.New("boom")
	err := Retry(ctx, func(context.Context) error {
		calls++
		return boom
	}, 3)
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("cancelled sleep should stop retries: err=%v calls=%d", err, calls)
	}
}

func TestRetrier_MinimumOneAttempt(t *testing.T) {
	calls := 0
	_ = Retrier{}.Do(context.Background(), func(context.Context) error { calls++; return nil }, 0)
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}
