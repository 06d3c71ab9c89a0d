// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read and seed helpers for transactions,
// budgets and user settings, the inputs to spending analytics.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

// DefaultCurrency is used when a user has no settings row.
const DefaultCurrency = "USD"

// TxFilter narrows a transaction scan. Start and End are inclusive calendar
// dates; Type empty matches every kind.
type TxFilter struct {
	UserID string
	Start  time.Time
	End    time.Time
	Type   string
}

// FindTransactions returns the transactions matching f ordered by date then id.
func FindTransactions(ctx context.Context, db *gorm.DB, f TxFilter) ([]domain.Transaction, error) {
	q := db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date < ?", f.UserID, DateOnly(f.Start), DateOnly(f.End).AddDate(0, 0, 1))
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var out []domain.Transaction
	err := q.Order("date ASC, id ASC").Find(&out).Error
	return out, err
}

// CreateTransaction inserts a transaction, assigning an ID and defaulting the
// type to expense.
func CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Type == "" {
		tx.Type = domain.TransactionExpense
	}
	if strings.TrimSpace(tx.Category) == "" {
		tx.Category = "Uncategorized"
	}
	tx.Date = DateOnly(tx.Date)
	return db.WithContext(ctx).Create(tx).Error
}

// ListActiveUsers returns the distinct users with at least one transaction in
// [start, end].
func ListActiveUsers(ctx context.Context, db *gorm.DB, start, end time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("date >= ? AND date < ?", DateOnly(start), DateOnly(end).AddDate(0, 0, 1)).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// FindBudgets lists a user's budgets ordered by name.
func FindBudgets(ctx context.Context, db *gorm.DB, userID string) ([]domain.Budget, error) {
	var out []domain.Budget
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

// CreateBudget inserts a budget, assigning an ID when empty.
func CreateBudget(ctx context.Context, db *gorm.DB, b *domain.Budget) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(b).Error
}

// GetBudgetProgress sums the expenses in the budget's category over
// [start, end] and compares them with the limit. A zero limit reports 0%.
func GetBudgetProgress(ctx context.Context, db *gorm.DB, userID, budgetID string, start, end time.Time) (*domain.BudgetProgress, error) {
	var b domain.Budget
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", budgetID, userID).First(&b).Error; err != nil {
		return nil, err
	}
	txs, err := FindTransactions(ctx, db, TxFilter{UserID: userID, Start: start, End: end, Type: domain.TransactionExpense})
	if err != nil {
		return nil, err
	}
	spent := decimal.Zero
	for _, t := range txs {
		if t.Category == b.Category {
			spent = spent.Add(t.Amount)
		}
	}
	pct := 0.0
	if b.Limit.IsPositive() {
		pct, _ = spent.Div(b.Limit).Mul(decimal.NewFromInt(100)).Float64()
	}
	return &domain.BudgetProgress{BudgetID: b.ID, Spent: spent, Limit: b.Limit, PercentUsed: pct}, nil
}

// GetUserSettings returns the user's settings, or defaults when none exist.
func GetUserSettings(ctx context.Context, db *gorm.DB, userID string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.UserSettings{UserID: userID, Currency: DefaultCurrency}, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Currency) == "" {
		s.Currency = DefaultCurrency
	}
	return &s, nil
}

// SaveUserSettings upserts the user's settings.
func SaveUserSettings(ctx context.Context, db *gorm.DB, s *domain.UserSettings) error {
	return db.WithContext(ctx).Save(s).Error
}
