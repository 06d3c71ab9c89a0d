// Command server runs the insights HTTP API and the monthly pre-generation
// schedule.
//
//	@title			Insights API
//	@version		1.0
//	@description	Generates, caches and exports monthly spending insights.
//	@BasePath		/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in				header
//	@name			Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insights-backend/docs"
	"github.com/tbourn/go-insights-backend/internal/analytics"
	"github.com/tbourn/go-insights-backend/internal/cache"
	"github.com/tbourn/go-insights-backend/internal/config"
	httpapi "github.com/tbourn/go-insights-backend/internal/http"
	"github.com/tbourn/go-insights-backend/internal/llm"
	"github.com/tbourn/go-insights-backend/internal/observability"
	"github.com/tbourn/go-insights-backend/internal/repo"
	"github.com/tbourn/go-insights-backend/internal/scheduler"
	"github.com/tbourn/go-insights-backend/internal/services"
	"github.com/tbourn/go-insights-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	if sysutil.IsTruthy(os.Getenv("DB_SKIP_MIGRATE")) {
		log.Info().Msg("schema migration skipped")
	} else if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	gateway, err := llm.New(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("model gateway setup failed")
	}
	defer gateway.Close()

	store := repo.NewStore(db)
	svc := services.NewInsightService(store, analytics.New(store), gateway, cache.New(cfg.Insights.CacheTTL))
	svc.Retention = cfg.Insights.Retention

	sched, err := scheduler.New(cfg.Insights.Schedule, store, svc)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	err = sched.Every("@hourly", "idempotency-purge", time.Minute, func(ctx context.Context) error {
		n, err := store.PurgeExpiredIdempotency(ctx, time.Now().UTC())
		if n > 0 {
			log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
		}
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	sched.Start()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Insights: svc, Store: store}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("llm_provider", gateway.Provider()).
			Str("schedule", cfg.Insights.Schedule).
			Time("next_run", sched.Next()).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("scheduled run still in progress at shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
