// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file exposes Store, a method-set view over the free
// functions so higher layers can depend on small interfaces.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

// Store binds the repository functions to a database handle. Absent records
// are reported as ErrNotFound.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) FindTransactions(ctx context.Context, f TxFilter) ([]domain.Transaction, error) {
	return FindTransactions(ctx, s.DB, f)
}

func (s *Store) FindBudgets(ctx context.Context, userID string) ([]domain.Budget, error) {
	return FindBudgets(ctx, s.DB, userID)
}

func (s *Store) GetBudgetProgress(ctx context.Context, userID, budgetID string, start, end time.Time) (*domain.BudgetProgress, error) {
	return GetBudgetProgress(ctx, s.DB, userID, budgetID, start, end)
}

func (s *Store) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return GetUserSettings(ctx, s.DB, userID)
}

func (s *Store) FindInsightByPeriod(ctx context.Context, userID string, start, end time.Time) (*domain.Insight, error) {
	return FindInsightByPeriod(ctx, s.DB, userID, start, end)
}

func (s *Store) FindLatestInsight(ctx context.Context, userID string) (*domain.Insight, error) {
	return FindLatestInsight(ctx, s.DB, userID)
}

func (s *Store) GetInsight(ctx context.Context, id, userID string) (*domain.Insight, error) {
	return GetInsight(ctx, s.DB, id, userID)
}

func (s *Store) CreateInsight(ctx context.Context, in *domain.Insight) (*domain.Insight, error) {
	return CreateInsight(ctx, s.DB, in)
}

func (s *Store) DeleteInsight(ctx context.Context, id, userID string) error {
	return DeleteInsight(ctx, s.DB, id, userID)
}

func (s *Store) PruneInsights(ctx context.Context, userID string, keep int) (int64, error) {
	return PruneInsights(ctx, s.DB, userID, keep)
}

func (s *Store) ListInsightsPage(ctx context.Context, userID string, offset, limit int) ([]domain.Insight, error) {
	return ListInsightsPage(ctx, s.DB, userID, offset, limit)
}

func (s *Store) CountInsights(ctx context.Context, userID string) (int64, error) {
	return CountInsights(ctx, s.DB, userID)
}

func (s *Store) InsightsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return InsightsStats(ctx, s.DB, userID)
}

func (s *Store) ListActiveUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	return ListActiveUsers(ctx, s.DB, start, end)
}

func (s *Store) GetIdempotency(ctx context.Context, userID, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, userID, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, userID, key, insightID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, userID, key, insightID, status, ttl)
}

func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	return PurgeExpiredIdempotency(ctx, s.DB, now)
}
