package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

func TestInsightsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := InsightsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing insights table")
	}
}

func TestInsightsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Insight{})
	count, latest, err := InsightsStats(context.Background(), db, "u1")
	if err != nil || count != 0 || latest != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, latest, err)
	}
}

func TestInsightsStats_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.Insight{})
	ctx := context.Background()

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for u1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other user
	for _, s := range []struct {
		user string
		at   time.Time
	}{{"u1", t1}, {"u1", t2}, {"u2", t3}} {
		if _, err := CreateInsight(ctx, db, &domain.Insight{UserID: s.user, PeriodStart: t1, PeriodEnd: t1, MonthlySummary: "s", GeneratedAt: s.at}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, latest, err := InsightsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("InsightsStats: %v", err)
	}
	if count != 2 || latest == nil || !latest.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, latest)
	}
}
