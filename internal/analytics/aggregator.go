// Package analytics turns raw transactions and budgets into a spending
// Snapshot for one user and period. Snapshots are ephemeral: they are built
// per generation call and never persisted.
package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/repo"
)

// TopMerchantLimit caps the merchant list in a snapshot.
const TopMerchantLimit = 5

var hundred = decimal.NewFromInt(100)

// ErrInvalidPeriod is returned when Start is after End.
var ErrInvalidPeriod = errors.New("analytics: period start after end")

// Period is an inclusive calendar-date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// Filter narrows the aggregation. An empty Category matches everything.
type Filter struct {
	Category string
}

// CategoryBreakdown is the spend for one category.
type CategoryBreakdown struct {
	Category   string
	Total      decimal.Decimal
	Count      int
	Percentage float64
}

// MerchantTotal is the spend at one merchant.
type MerchantTotal struct {
	Merchant string
	Total    decimal.Decimal
	Count    int
}

// BudgetStatus compares a budget with actual spend over the period.
type BudgetStatus struct {
	Name        string
	PercentUsed float64
	Spent       decimal.Decimal
	Limit       decimal.Decimal
}

// TrendPoint is the total spend on one day.
type TrendPoint struct {
	Date  time.Time
	Total decimal.Decimal
}

// Snapshot is the aggregated view of a period. Categories keep the order in
// which they first appear in the date-ordered transaction stream.
type Snapshot struct {
	TotalSpending    decimal.Decimal
	TransactionCount int
	Categories       []CategoryBreakdown
	TopMerchants     []MerchantTotal
	Budgets          []BudgetStatus
	Trend            []TrendPoint
}

// Store is the read side of the persistent store used for aggregation.
type Store interface {
	FindTransactions(ctx context.Context, f repo.TxFilter) ([]domain.Transaction, error)
	FindBudgets(ctx context.Context, userID string) ([]domain.Budget, error)
	GetBudgetProgress(ctx context.Context, userID, budgetID string, start, end time.Time) (*domain.BudgetProgress, error)
}

// Aggregator computes snapshots from a Store.
type Aggregator struct {
	Store Store
}

// New returns an Aggregator reading from s.
func New(s Store) *Aggregator { return &Aggregator{Store: s} }

// Snapshot aggregates the user's expenses in p. Transaction and budget reads
// run concurrently and must both succeed.
func (a *Aggregator) Snapshot(ctx context.Context, userID string, p Period, f Filter) (*Snapshot, error) {
	tr := otel.Tracer("analytics/Aggregator")
	ctx, span := tr.Start(ctx, "Snapshot",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("period.start", p.Start.Format(time.DateOnly)),
			attribute.String("period.end", p.End.Format(time.DateOnly)),
		),
	)
	defer span.End()

	if p.Start.After(p.End) {
		return nil, ErrInvalidPeriod
	}

	var (
		txs     []domain.Transaction
		budgets []BudgetStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = a.Store.FindTransactions(gctx, repo.TxFilter{
			UserID: userID,
			Start:  p.Start,
			End:    p.End,
			Type:   domain.TransactionExpense,
		})
		return err
	})
	g.Go(func() error {
		var err error
		budgets, err = a.budgetStatus(gctx, userID, p)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if c := strings.TrimSpace(f.Category); c != "" {
		kept := make([]domain.Transaction, 0, len(txs))
		for _, t := range txs {
			if strings.EqualFold(t.Category, c) {
				kept = append(kept, t)
			}
		}
		txs = kept
	}

	snap := Summarize(txs)
	snap.Budgets = budgets
	span.SetAttributes(attribute.Int("tx.count", snap.TransactionCount))
	return snap, nil
}

func (a *Aggregator) budgetStatus(ctx context.Context, userID string, p Period) ([]BudgetStatus, error) {
	budgets, err := a.Store.FindBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		prog, err := a.Store.GetBudgetProgress(ctx, userID, b.ID, p.Start, p.End)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && prog == nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, BudgetStatus{
			Name:        b.Name,
			PercentUsed: prog.PercentUsed,
			Spent:       prog.Spent,
			Limit:       prog.Limit,
		})
	}
	return out, nil
}

// Summarize computes totals, the category breakdown, top merchants and the
// daily trend from expense transactions. Non-expense rows are ignored.
func Summarize(txs []domain.Transaction) *Snapshot {
	snap := &Snapshot{
		TotalSpending: decimal.Zero,
		Categories:    []CategoryBreakdown{},
	}

	catIdx := map[string]int{}
	merchants := map[string]*MerchantTotal{}
	days := map[string]*TrendPoint{}

	for _, t := range txs {
		if t.Type != "" && t.Type != domain.TransactionExpense {
			continue
		}
		snap.TotalSpending = snap.TotalSpending.Add(t.Amount)
		snap.TransactionCount++

		i, ok := catIdx[t.Category]
		if !ok {
			i = len(snap.Categories)
			catIdx[t.Category] = i
			snap.Categories = append(snap.Categories, CategoryBreakdown{Category: t.Category, Total: decimal.Zero})
		}
		snap.Categories[i].Total = snap.Categories[i].Total.Add(t.Amount)
		snap.Categories[i].Count++

		if m := strings.TrimSpace(t.Merchant); m != "" {
			mt, ok := merchants[m]
			if !ok {
				mt = &MerchantTotal{Merchant: m, Total: decimal.Zero}
				merchants[m] = mt
			}
			mt.Total = mt.Total.Add(t.Amount)
			mt.Count++
		}

		d := repo.DateOnly(t.Date)
		key := d.Format(time.DateOnly)
		tp, ok := days[key]
		if !ok {
			tp = &TrendPoint{Date: d, Total: decimal.Zero}
			days[key] = tp
		}
		tp.Total = tp.Total.Add(t.Amount)
	}

	for i := range snap.Categories {
		snap.Categories[i].Percentage = Percentage(snap.Categories[i].Total, snap.TotalSpending)
	}

	for _, m := range merchants {
		snap.TopMerchants = append(snap.TopMerchants, *m)
	}
	sort.Slice(snap.TopMerchants, func(i, j int) bool {
		a, b := snap.TopMerchants[i], snap.TopMerchants[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Merchant < b.Merchant
	})
	if len(snap.TopMerchants) > TopMerchantLimit {
		snap.TopMerchants = snap.TopMerchants[:TopMerchantLimit]
	}

	for _, tp := range days {
		snap.Trend = append(snap.Trend, *tp)
	}
	sort.Slice(snap.Trend, func(i, j int) bool { return snap.Trend[i].Date.Before(snap.Trend[j].Date) })

	return snap
}

// Percentage returns part/total*100, or 0 when total is zero.
func Percentage(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	f, _ := part.Div(total).Mul(hundred).Float64()
	return f
}
