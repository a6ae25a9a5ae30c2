// Package main is the entrypoint for the healthreport API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/healthreport/internal/analysis"
	"github.com/kiranshivaraju/healthreport/internal/api"
	"github.com/kiranshivaraju/healthreport/internal/api/handler"
	mw "github.com/kiranshivaraju/healthreport/internal/api/middleware"
	"github.com/kiranshivaraju/healthreport/internal/cache"
	"github.com/kiranshivaraju/healthreport/internal/catalog"
	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/internal/dispatch"
	"github.com/kiranshivaraju/healthreport/internal/pipeline"
	"github.com/kiranshivaraju/healthreport/internal/remote"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/internal/triage"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const (
	shutdownTimeout = 30 * time.Second

	// writeSlack is added to the report timeout so a blocking generate
	// request can still write its response after the remote call returns.
	writeSlack = 30 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "triage_provider", cfg.Triage.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create remote services
	triager, err := remote.NewTriager(cfg.Triage)
	if err != nil {
		return fmt.Errorf("create triager: %w", err)
	}
	generator := remote.NewReportGenerator(cfg.Reports)
	slog.Info("remote services initialized", "triager", triager.Name(), "generator", generator.Name())

	// 6. Build router with dependencies
	pgStore := store.NewPostgresStore(pool)
	router := api.NewRouter(newDependencies(cfg, pgStore, redisCache, triager, generator))

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newDependencies wires the pipeline and every handler. It performs no I/O.
func newDependencies(cfg *config.Config, st store.Store, c cache.Cache, tr models.Triager, gen models.ReportGenerator) api.Dependencies {
	cat := catalog.New(st, c, cfg.Pipeline.CatalogCacheTTL)

	reg := pipeline.NewRegistry(&pipeline.Deps{
		Catalog:    cat,
		Triage:     triage.NewCoordinator(tr, cfg.Triage.HTTP.Timeout),
		Writer:     analysis.NewWriter(st),
		Verifier:   analysis.NewVerifier(st),
		Dispatcher: dispatch.NewDispatcher(gen, cfg.Reports.HTTP.Timeout),
	}, cfg.Pipeline.SessionTTL)

	return api.Dependencies{
		Auth:           mw.NewAuth(st),
		RateLimit:      mw.NewRateLimit(c, cfg.Server.RequestsPerMinute),
		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler:   handler.NewHealthHandler(st, c),
		ListAssessments: handler.NewListAssessmentsHandler(cat),

		CreatePipeline:   handler.NewCreatePipelineHandler(reg),
		ListPipelines:    handler.NewListPipelinesHandler(reg),
		GetPipeline:      handler.NewGetPipelineHandler(reg),
		DeletePipeline:   handler.NewDeletePipelineHandler(reg),
		StartOver:        handler.NewStartOverHandler(reg),
		ToggleSelection:  handler.NewToggleHandler(reg),
		ReplaceSelection: handler.NewReplaceSelectionHandler(reg),
		RunTriage:        handler.NewTriageHandler(reg),
		AcceptTriage:     handler.NewAcceptTriageHandler(reg),
		Generate:         handler.NewGenerateHandler(reg),
		RetryDispatch:    handler.NewRetryDispatchHandler(reg),

		ListAnalyses: handler.NewListAnalysesHandler(st),
		GetAnalysis:  handler.NewGetAnalysisHandler(st),

		CreateKeyHandler: handler.NewCreateKeyHandler(st),
		ListKeysHandler:  handler.NewListKeysHandler(st),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(st),
	}
}

func writeTimeout(cfg *config.Config) time.Duration {
	return cfg.Reports.HTTP.Timeout + writeSlack
}
