package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/services"
)

type fakeUsers struct {
	ids        []string
	err        error
	start, end time.Time
}

func (f *fakeUsers) ListActiveUsers(_ context.Context, start, end time.Time) ([]string, error) {
	f.start, f.end = start, end
	return f.ids, f.err
}

type fakeGen struct {
	mu   sync.Mutex
	fail map[string]bool
	reqs map[string]services.GenerateRequest
}

func (f *fakeGen) Generate(_ context.Context, userID string, req services.GenerateRequest) (*domain.Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reqs == nil {
		f.reqs = map[string]services.GenerateRequest{}
	}
	f.reqs[userID] = req
	if f.fail[userID] {
		return nil, errors.New("boom")
	}
	return &domain.Insight{ID: "in-" + userID, UserID: userID}, nil
}

func TestPreviousMonth(t *testing.T) {
	cases := []struct {
		now        time.Time
		start, end string
	}{
		{time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), "2024-02-01", "2024-02-29"},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2023-12-01", "2023-12-31"},
		{time.Date(2023, 5, 31, 23, 59, 0, 0, time.UTC), "2023-04-01", "2023-04-30"},
	}
	for _, tc := range cases {
		s, e := PreviousMonth(tc.now)
		if s.Format(time.DateOnly) != tc.start || e.Format(time.DateOnly) != tc.end {
			t.Fatalf("PreviousMonth(%v) = %v..%v, want %s..%s", tc.now, s, e, tc.start, tc.end)
		}
	}
}

func TestRunOnce_GeneratesForEachActiveUser(t *testing.T) {
	users := &fakeUsers{ids: []string{"u1", "u2", "u3"}}
	gen := &fakeGen{fail: map[string]bool{"u2": true}}
	s, err := New("0 3 1 * *", users, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC) }

	ok, failed := s.RunOnce(context.Background())
	if ok != 2 || failed != 1 {
		t.Fatalf("generated=%d failed=%d, want 2/1", ok, failed)
	}
	if users.start.Format(time.DateOnly) != "2024-02-01" || users.end.Format(time.DateOnly) != "2024-02-29" {
		t.Fatalf("users listed for wrong window: %v..%v", users.start, users.end)
	}
	want := services.GenerateRequest{StartDate: "2024-02-01", EndDate: "2024-02-29"}
	for _, u := range users.ids {
		if gen.reqs[u] != want {
			t.Fatalf("user %s got %+v", u, gen.reqs[u])
		}
	}
}

func TestRunOnce_ListFailure(t *testing.T) {
	gen := &fakeGen{}
	s, _ := New("@monthly", &fakeUsers{err: errors.New("db down")}, gen)
	if ok, failed := s.RunOnce(context.Background()); ok != 0 || failed != 0 || len(gen.reqs) != 0 {
		t.Fatalf("no generation expected when listing fails")
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New("not a cron", &fakeUsers{}, &fakeGen{}); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestNext(t *testing.T) {
	s, err := New("0 3 1 * *", &fakeUsers{}, &fakeGen{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()
	next := s.Next()
	if next.IsZero() || next.Day() != 1 || next.Hour() != 3 {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestEvery_RunsMaintenanceWithoutMonthlyJob(t *testing.T) {
	s, err := New("", &fakeUsers{}, &fakeGen{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatalf("no monthly job should be registered")
	}

	ran := make(chan struct{}, 1)
	err = s.Every("@every 1s", "purge", time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("maintenance ctx should carry a deadline")
		}
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("ignored")
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	if err := s.Every("bogus", "x", time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid spec error")
	}

	s.Start()
	defer s.Stop()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("maintenance task did not run")
	}
}
