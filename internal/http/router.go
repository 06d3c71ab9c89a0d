// Package httpapi wires the HTTP transport (Gin) to the insight service,
// middleware and handlers. It owns the cross-cutting concerns: tracing,
// correlation ids, redacted access logs, panic recovery, metrics, CORS,
// security headers, auth, idempotency and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-insights-backend/internal/config"
	"github.com/tbourn/go-insights-backend/internal/http/handlers"
	"github.com/tbourn/go-insights-backend/internal/http/middleware"
	"github.com/tbourn/go-insights-backend/internal/repo"
	"github.com/tbourn/go-insights-backend/internal/services"
)

// Deps are the application components the routes are bound to.
type Deps struct {
	Insights *services.InsightService
	Store    *repo.Store
}

// RegisterRoutes attaches middleware and endpoints to r and mounts the API
// under cfg.APIBasePath.
//
// Global order:
//  1. OpenTelemetry
//  2. RequestID
//  3. AccessLog (redacted)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. CORS and security headers
//
// API group order: Auth, gzip, then per-route Idempotency before the rate
// limiter so replays are not throttled.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(deps.Store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var idemLookup middleware.IdempotencyLookup
	if deps.Store != nil {
		idemLookup = func(ctx context.Context, userID, key string, now time.Time) (string, bool) {
			rec, err := deps.Store.GetIdempotency(ctx, userID, key, now)
			if err != nil {
				return "", false
			}
			return rec.InsightID, true
		}
	}
	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	var stats handlers.InsightStats
	var idem handlers.IdempotencyStore
	if deps.Store != nil {
		stats, idem = deps.Store, deps.Store
	}
	h := handlers.New(deps.Insights, stats, idem, cfg.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{Secret: cfg.JWTSecret}))
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.POST("/insights/generate",
			middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, idemLookup),
			limiter.Handler(),
			h.GenerateInsight,
		)
		api.GET("/insights/latest", h.GetLatestInsight)
		api.GET("/insights", h.ListInsights)
		api.GET("/insights/:id/export", h.ExportInsight)
		api.DELETE("/insights/cache", h.ClearInsightCache)
		api.DELETE("/insights/:id", h.DeleteInsight)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the allowlist.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Retry-After", "Idempotency-Replayed", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

// health reports liveness and, when a store is wired, database reachability.
func health(store *repo.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store != nil && store.DB != nil {
			sqlDB, err := store.DB.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps request bodies; oversized reads fail downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
