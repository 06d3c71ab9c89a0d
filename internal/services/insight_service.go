// Package services – InsightService
//
// This file implements InsightService, the orchestrator of insight
// generation. A request moves through CacheCheck, StoreCheck, Aggregate,
// Prompt, Invoke, Validate, Persist and Prune. When aggregation, prompting or
// the model fails, the fallback ladder returns the user's latest stored
// insight, or else persists a placeholder so later requests for the same
// period are served from the store.
//
// Observability: public methods are OpenTelemetry-instrumented; absorbed
// failures are logged with user, period and error kind.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-insights-backend/internal/analytics"
	"github.com/tbourn/go-insights-backend/internal/cache"
	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/llm"
	"github.com/tbourn/go-insights-backend/internal/prompt"
	"github.com/tbourn/go-insights-backend/internal/repo"
	"github.com/tbourn/go-insights-backend/internal/utils"
	"github.com/tbourn/go-insights-backend/internal/validate"
)

// DefaultRetention is the number of stored insights kept per user.
const DefaultRetention = 10

// Generation outcomes, used as the metric label.
const (
	SourceCache       = "cache"
	SourceStore       = "store"
	SourceGenerated   = "generated"
	SourceLatest      = "latest"
	SourcePlaceholder = "placeholder"
)

// Fallback stages.
const (
	stageAggregate = "aggregate"
	stagePrompt    = "prompt"
	stageInvoke    = "invoke"
)

// InsightStore is the persistence contract the service depends on. Absent
// records are reported as repo.ErrNotFound.
type InsightStore interface {
	FindInsightByPeriod(ctx context.Context, userID string, start, end time.Time) (*domain.Insight, error)
	FindLatestInsight(ctx context.Context, userID string) (*domain.Insight, error)
	GetInsight(ctx context.Context, id, userID string) (*domain.Insight, error)
	CreateInsight(ctx context.Context, in *domain.Insight) (*domain.Insight, error)
	DeleteInsight(ctx context.Context, id, userID string) error
	PruneInsights(ctx context.Context, userID string, keep int) (int64, error)
	ListInsightsPage(ctx context.Context, userID string, offset, limit int) ([]domain.Insight, error)
	CountInsights(ctx context.Context, userID string) (int64, error)
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
}

// Aggregator produces the analytics snapshot for a period.
type Aggregator interface {
	Snapshot(ctx context.Context, userID string, p analytics.Period, f analytics.Filter) (*analytics.Snapshot, error)
}

// Completer sends a prompt to the model, retrying until accept passes.
type Completer interface {
	Complete(ctx context.Context, promptText, locale string, accept func(raw string) error) (string, error)
}

// GenerateRequest carries the raw period bounds as ISO calendar dates.
type GenerateRequest struct {
	StartDate string
	EndDate   string
}

// InsightService coordinates insight generation, lookup and export.
type InsightService struct {
	Store     InsightStore
	Analytics Aggregator
	Model     Completer
	Cache     *cache.InsightCache
	Retention int

	// Now is the clock used for generated_at; nil uses time.Now.
	Now func() time.Time

	inflight singleflight.Group
}

// NewInsightService wires an InsightService with default retention.
func NewInsightService(store InsightStore, agg Aggregator, model Completer, c *cache.InsightCache) *InsightService {
	if c == nil {
		c = cache.New(cache.DefaultTTL)
	}
	return &InsightService{Store: store, Analytics: agg, Model: model, Cache: c, Retention: DefaultRetention}
}

func (s *InsightService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InsightService) retention() int {
	if s.Retention > 0 {
		return s.Retention
	}
	return DefaultRetention
}

// ParsePeriod validates ISO calendar dates and returns the inclusive period.
func ParsePeriod(startDate, endDate string) (analytics.Period, error) {
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(startDate))
	if err != nil {
		return analytics.Period{}, ErrInvalidDate
	}
	end, err := time.Parse(time.DateOnly, strings.TrimSpace(endDate))
	if err != nil {
		return analytics.Period{}, ErrInvalidDate
	}
	if start.After(end) {
		return analytics.Period{}, ErrInvalidRange
	}
	return analytics.Period{Start: start, End: end}, nil
}

// Generate returns an insight for the requested period. Validation errors are
// returned immediately; model and analytics failures are absorbed by the
// fallback ladder. Concurrent calls for the same user and period share one
// execution, which is not cancelled when the caller that started it goes
// away.
func (s *InsightService) Generate(ctx context.Context, userID string, req GenerateRequest) (*domain.Insight, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("period.start", req.StartDate),
			attribute.String("period.end", req.EndDate),
		),
	)
	defer span.End()

	p, err := ParsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	// The shared run outlives any one caller's cancellation; the model call
	// is bounded by the gateway's per-call timeout. Span values are kept.
	work := context.WithoutCancel(ctx)
	v, err, shared := s.inflight.Do(cache.Key(userID, p.Start, p.End), func() (any, error) {
		return s.generate(work, userID, p)
	})
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*domain.Insight), nil
}

func (s *InsightService) generate(ctx context.Context, userID string, p analytics.Period) (*domain.Insight, error) {
	span := trace.SpanFromContext(ctx)

	// CacheCheck
	if hit := s.Cache.Get(userID, p.Start, p.End); hit != nil {
		recordOutcome(span, SourceCache)
		return hit, nil
	}

	// StoreCheck
	stored, err := s.Store.FindInsightByPeriod(ctx, userID, p.Start, p.End)
	switch {
	case err == nil:
		s.Cache.Put(userID, p.Start, p.End, stored)
		recordOutcome(span, SourceStore)
		return stored, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("%w: find insight by period: %w", ErrPersistence, err)
	}

	// Aggregate, Prompt, Invoke, Validate
	parsed, stage, err := s.produce(ctx, userID, p)
	if err != nil {
		return s.fallback(ctx, userID, p, stage, err)
	}

	// Persist
	created, err := s.Store.CreateInsight(ctx, insightFromParsed(userID, p, parsed, s.now()))
	if err != nil {
		return nil, fmt.Errorf("%w: create insight: %w", ErrPersistence, err)
	}

	s.prune(ctx, userID)
	s.Cache.Put(userID, p.Start, p.End, created)
	recordOutcome(span, SourceGenerated)
	return created, nil
}

// produce runs the model-facing steps and reports the stage that failed.
func (s *InsightService) produce(ctx context.Context, userID string, p analytics.Period) (*domain.ParsedInsight, string, error) {
	snap, err := s.Analytics.Snapshot(ctx, userID, p, analytics.Filter{})
	if err != nil {
		return nil, stageAggregate, err
	}

	settings, err := s.Store.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, stagePrompt, err
	}
	cur, err := prompt.ResolveCurrency(settings.Currency)
	if err != nil {
		return nil, stagePrompt, err
	}
	text := prompt.Build(snap, p, cur)

	var parsed *domain.ParsedInsight
	_, err = s.Model.Complete(ctx, text, cur.Locale.String(), func(raw string) error {
		pi, perr := validate.Parse(raw)
		if perr != nil {
			return perr
		}
		parsed = pi
		return nil
	})
	if err != nil {
		return nil, stageInvoke, err
	}
	return parsed, "", nil
}

// fallback returns the latest stored insight, or persists a placeholder.
// The latest insight is not cached under the requested period because it
// belongs to a different one.
func (s *InsightService) fallback(ctx context.Context, userID string, p analytics.Period, stage string, cause error) (*domain.Insight, error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)

	c := llm.Classify(cause)
	log.Warn().
		Err(cause).
		Str("user_id", userID).
		Str("period_start", p.Start.Format(time.DateOnly)).
		Str("period_end", p.End.Format(time.DateOnly)).
		Str("stage", stage).
		Str("kind", string(c.Kind)).
		Bool("retryable", c.Retryable).
		Msg("insight generation failed; falling back")

	latest, err := s.Store.FindLatestInsight(ctx, userID)
	if err == nil {
		recordOutcome(span, SourceLatest)
		return latest, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		log.Error().Err(err).Str("user_id", userID).Msg("latest insight lookup failed")
	}

	created, err := s.Store.CreateInsight(ctx, Placeholder(userID, p, s.now()))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("placeholder insight could not be persisted")
		return nil, fmt.Errorf("%w: %w", ErrInsightGenerationFailed, errors.Join(cause, err))
	}
	s.prune(ctx, userID)
	s.Cache.Put(userID, p.Start, p.End, created)
	recordOutcome(span, SourcePlaceholder)
	return created, nil
}

func (s *InsightService) prune(ctx context.Context, userID string) {
	n, err := s.Store.PruneInsights(ctx, userID, s.retention())
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("insight retention pruning failed")
		return
	}
	if n > 0 {
		log.Debug().Str("user_id", userID).Int64("removed", n).Msg("pruned old insights")
	}
}

// GetLatest returns the user's most recent insight, or nil when none exists.
func (s *InsightService) GetLatest(ctx context.Context, userID string) (*domain.Insight, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "GetLatest", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	in, err := s.Store.FindLatestInsight(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find latest insight: %w", ErrPersistence, err)
	}
	return in, nil
}

// ListPage returns a page of the user's insights, newest first, and the total.
func (s *InsightService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Insight, int64, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, size, offset := utils.Page(page, pageSize)
	total, err := s.Store.CountInsights(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Insight{}, 0, nil
	}
	items, err := s.Store.ListInsightsPage(ctx, userID, offset, size)
	return items, total, err
}

// Delete removes one of the user's insights and drops the user's cached
// entries, since any of them may point at the deleted record.
func (s *InsightService) Delete(ctx context.Context, insightID, userID string) error {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("insight.id", insightID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	err := s.Store.DeleteInsight(ctx, insightID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInsightNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: delete insight: %w", ErrPersistence, err)
	}
	s.Cache.ClearUser(userID)
	return nil
}

// InvalidateUser drops the user's cached insights and returns how many were
// removed.
func (s *InsightService) InvalidateUser(userID string) int { return s.Cache.ClearUser(userID) }

// InvalidateAll empties the insight cache.
func (s *InsightService) InvalidateAll() { s.Cache.ClearAll() }

func insightFromParsed(userID string, p analytics.Period, pi *domain.ParsedInsight, at time.Time) *domain.Insight {
	return &domain.Insight{
		UserID:           userID,
		PeriodStart:      p.Start,
		PeriodEnd:        p.End,
		MonthlySummary:   pi.MonthlySummary,
		CategoryInsights: pi.CategoryInsights,
		SpendingSpikes:   pi.SpendingSpikes,
		Recommendations:  pi.Recommendations,
		Projections:      pi.Projections,
		GeneratedAt:      at,
	}
}

// Placeholder is the statically composed insight persisted when generation
// and every fallback fail.
func Placeholder(userID string, p analytics.Period, at time.Time) *domain.Insight {
	return &domain.Insight{
		UserID:           userID,
		PeriodStart:      p.Start,
		PeriodEnd:        p.End,
		MonthlySummary:   "We couldn't generate detailed insights for this period yet. Your data is safe; please check back later.",
		CategoryInsights: []domain.CategoryInsight{},
		SpendingSpikes:   []domain.SpendingSpike{},
		Recommendations: []string{
			"Review your largest expense categories and look for easy savings.",
			"Set or adjust budgets for the categories you spend most on.",
			"Check recurring subscriptions and cancel the ones you no longer use.",
		},
		Projections: &domain.Projections{
			NextWeek:    0,
			NextMonth:   0,
			Confidence:  domain.ConfidenceLow,
			Explanation: "Projections are unavailable because insight generation did not complete.",
		},
		Placeholder: true,
		GeneratedAt: at,
	}
}
