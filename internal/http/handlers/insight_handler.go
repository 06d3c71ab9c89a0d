// Insight HTTP handlers.
//
// This file exposes the REST surface for generated insights:
//   - POST   /insights/generate        (generate or reuse, idempotent with a key)
//   - GET    /insights/latest          (most recent insight)
//   - GET    /insights                 (history, paginated, ETag support)
//   - GET    /insights/{id}/export     (plain-text report)
//   - DELETE /insights/{id}            (remove a stored insight)
//   - DELETE /insights/cache           (drop the caller's cached insights)
//
// Handlers validate transport input, call the InsightService and translate
// results and errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/http/middleware"
	"github.com/tbourn/go-insights-backend/internal/repo"
	"github.com/tbourn/go-insights-backend/internal/services"
	"github.com/tbourn/go-insights-backend/internal/utils"
)

// InsightService is the application contract consumed by the handlers.
type InsightService interface {
	Generate(ctx context.Context, userID string, req services.GenerateRequest) (*domain.Insight, error)
	GetLatest(ctx context.Context, userID string) (*domain.Insight, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Insight, int64, error)
	Export(ctx context.Context, insightID, userID, format string) (string, error)
	Delete(ctx context.Context, insightID, userID string) error
	InvalidateUser(userID string) int
}

// InsightStats backs the list ETag.
type InsightStats interface {
	InsightsStats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// IdempotencyStore records and replays generation results per (user, key).
type IdempotencyStore interface {
	CreateIdempotency(ctx context.Context, userID, key, insightID string, status int, ttl time.Duration) (*domain.Idempotency, error)
	GetInsight(ctx context.Context, id, userID string) (*domain.Insight, error)
}

// Handlers groups the insight endpoints.
type Handlers struct {
	svc     InsightService
	stats   InsightStats
	idem    IdempotencyStore
	idemTTL time.Duration
}

// New wires the handlers. stats and idem may be nil, which disables ETags
// and idempotent replays respectively.
func New(svc InsightService, stats InsightStats, idem IdempotencyStore, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{svc: svc, stats: stats, idem: idem, idemTTL: idemTTL}
}

//
// DTOs
//

// GenerateInsightRequest is the JSON payload for insight generation.
type GenerateInsightRequest struct {
	// StartDate is the first day of the period (inclusive).
	StartDate string `json:"start_date" binding:"required" example:"2024-01-01"`
	// EndDate is the last day of the period (inclusive).
	EndDate string `json:"end_date" binding:"required" example:"2024-01-31"`
}

// ListInsightsResponse wraps a page of insights and pagination information.
type ListInsightsResponse struct {
	Insights   []domain.Insight `json:"insights"`
	Pagination Pagination       `json:"pagination"`
}

// ClearCacheResponse reports how many cache entries were dropped.
type ClearCacheResponse struct {
	Cleared int `json:"cleared" example:"2"`
}

//
// Handlers
//

// GenerateInsight godoc
// @ID          generateInsight
// @Summary     Generate insights for a period
// @Description Returns the insight for the period, generating it when neither the cache nor the store has one.
// @Description When the model is unavailable the caller's latest insight, or a placeholder, is returned instead.
// @Description Supports idempotency via the Idempotency-Key header (same key → same insight).
// @Tags        Insights
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer token (when JWT auth is enabled)"
// @Param       X-User-ID        header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"     example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.GenerateInsightRequest  true  "Period"
//
// @Success     200  {object}  domain.Insight
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid dates"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Generation unavailable"
// @Router      /insights/generate [post]
func (h *Handlers) GenerateInsight(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	var req GenerateInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date and end_date are required")
		return
	}

	if id, replay := middleware.ReplayInsightID(c); replay && h.idem != nil {
		prev, err := h.idem.GetInsight(ctx, id, uid)
		if err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
		// The insight may have been pruned since; generate again.
		middleware.LoggerFrom(c).Debug().Err(err).Str("insight_id", id).Msg("idempotent replay target missing")
	}

	in, err := h.svc.Generate(ctx, uid, services.GenerateRequest{StartDate: req.StartDate, EndDate: req.EndDate})
	if err != nil {
		failErr(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
		if _, err := h.idem.CreateIdempotency(ctx, uid, key, in.ID, http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusOK, in)
}

// GetLatestInsight godoc
// @ID          getLatestInsight
// @Summary     Latest insight
// @Description Returns the caller's most recently generated insight.
// @Tags        Insights
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
//
// @Success     200  {object}  domain.Insight
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "No insights yet"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /insights/latest [get]
func (h *Handlers) GetLatestInsight(c *gin.Context) {
	in, err := h.svc.GetLatest(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	if in == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no insights yet")
		return
	}
	ok(c, http.StatusOK, in)
}

// ListInsights godoc
// @ID          listInsights
// @Summary     List insights (paginated)
// @Description Returns a page of the caller's insights, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Insights
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListInsightsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /insights [get]
func (h *Handlers) ListInsights(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	page, size, _ := utils.Page(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)

	// ETag pre-check (best effort).
	if h.stats != nil {
		if count, latest, err := h.stats.InsightsStats(ctx, uid); err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"insights:%s:%d:%d:%d:%d"`, uid, count, ts, page, size)
			c.Header("ETag", etag)
			c.Header("Cache-Control", "private, no-cache")
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.svc.ListPage(ctx, uid, page, size)
	if err != nil {
		failErr(c, fmt.Errorf("%w: %w", services.ErrPersistence, err))
		return
	}
	ok(c, http.StatusOK, ListInsightsResponse{Insights: items, Pagination: newPagination(page, size, total)})
}

// ExportInsight godoc
// @ID          exportInsight
// @Summary     Export an insight
// @Description Renders a stored insight as a plain-text report. PDF is not implemented.
// @Tags        Insights
// @Produce     plain
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       id         path    string  true  "Insight ID"  format(uuid)
// @Param       format     query   string  false "Export format"  Enums(text, pdf) default(text)
//
// @Success     200  {string}  string  "Report"
// @Failure     400  {object}  handlers.ErrorResponse  "Unsupported format"
// @Failure     404  {object}  handlers.ErrorResponse  "Insight not found"
// @Failure     501  {object}  handlers.ErrorResponse  "Format not implemented"
// @Router      /insights/{id}/export [get]
func (h *Handlers) ExportInsight(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", services.FormatText)

	body, err := h.svc.Export(c.Request.Context(), id, middleware.UserID(c), format)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="insight-%s.txt"`, id))
	c.String(http.StatusOK, body)
}

// DeleteInsight godoc
// @ID          deleteInsight
// @Summary     Delete an insight
// @Description Removes a stored insight owned by the caller. The next request for its period generates a new one.
// @Tags        Insights
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       id         path    string  true  "Insight ID"  format(uuid)
//
// @Success     204  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Insight not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /insights/{id} [delete]
func (h *Handlers) DeleteInsight(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearInsightCache godoc
// @ID          clearInsightCache
// @Summary     Clear cached insights
// @Description Drops the caller's in-memory cached insights so the next request reads from the store.
// @Tags        Insights
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
//
// @Success     200  {object}  handlers.ClearCacheResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /insights/cache [delete]
func (h *Handlers) ClearInsightCache(c *gin.Context) {
	ok(c, http.StatusOK, ClearCacheResponse{Cleared: h.svc.InvalidateUser(middleware.UserID(c))})
}
