// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Insight
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When an insight is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
//
// Ordering: "latest" and retention decisions use generated_at, with id as a
// deterministic tie-breaker.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateInsight inserts a new insight. ID and GeneratedAt are filled in when
// empty.
func CreateInsight(ctx context.Context, db *gorm.DB, in *domain.Insight) (*domain.Insight, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}
	in.PeriodStart = DateOnly(in.PeriodStart)
	in.PeriodEnd = DateOnly(in.PeriodEnd)
	in.Normalize()
	if err := db.WithContext(ctx).Create(in).Error; err != nil {
		return nil, err
	}
	return in, nil
}

// GetInsight fetches an insight by ID, scoped to its owner.
func GetInsight(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Insight, error) {
	var in domain.Insight
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&in).Error; err != nil {
		return nil, err
	}
	in.Normalize()
	return &in, nil
}

// FindInsightByPeriod returns the newest insight whose period matches
// [start, end] exactly.
func FindInsightByPeriod(ctx context.Context, db *gorm.DB, userID string, start, end time.Time) (*domain.Insight, error) {
	var in domain.Insight
	err := db.WithContext(ctx).
		Where("user_id = ? AND period_start = ? AND period_end = ?", userID, DateOnly(start), DateOnly(end)).
		Order("generated_at DESC, id DESC").
		First(&in).Error
	if err != nil {
		return nil, err
	}
	in.Normalize()
	return &in, nil
}

// FindLatestInsight returns the most recently generated insight for a user,
// regardless of period.
func FindLatestInsight(ctx context.Context, db *gorm.DB, userID string) (*domain.Insight, error) {
	var in domain.Insight
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC, id DESC").
		First(&in).Error
	if err != nil {
		return nil, err
	}
	in.Normalize()
	return &in, nil
}

// DeleteInsight hard-deletes an insight owned by userID. Deleting a missing
// record returns ErrNotFound.
func DeleteInsight(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Insight{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountInsights returns the number of stored insights for a user.
func CountInsights(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Insight{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListInsightsPage returns a page of a user's insights, newest first.
func ListInsightsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Insight, error) {
	var out []domain.Insight
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	for i := range out {
		out[i].Normalize()
	}
	return out, err
}

// ListInsightIDsOldestFirst returns the ids of a user's insights ordered from
// oldest to newest generation time.
func ListInsightIDsOldestFirst(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Insight{}).
		Where("user_id = ?", userID).
		Order("generated_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PruneInsights deletes a user's oldest insights so that at most keep remain.
// It returns the number of rows removed.
func PruneInsights(ctx context.Context, db *gorm.DB, userID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	ids, err := ListInsightIDsOldestFirst(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}
	stale := ids[:len(ids)-keep]
	res := db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, stale).
		Delete(&domain.Insight{})
	return res.RowsAffected, res.Error
}
