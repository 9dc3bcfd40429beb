// Package main is the entrypoint for the Verto gateway API server.
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

	"github.com/SimonPP123/verto-digital-app-sub002/internal/api"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/handler"
	mw "github.com/SimonPP123/verto-digital-app-sub002/internal/api/middleware"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/response"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/automation"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/cache"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/config"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/engine"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/metrics"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/requests"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
)

const shutdownTimeout = 30 * time.Second

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
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "engine", cfg.Engine.BaseURL)

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
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
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

	// 5. External service clients
	engineClient := engine.NewHTTPClient(cfg.Engine.BaseURL, cfg.Engine.Timeout)
	automationClient := automation.NewHTTPClient(cfg.Automation.WebhookURL, cfg.Automation.Token, cfg.Automation.Timeout)

	// 6. Store, metrics, request service
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New()
	svc := requests.NewService(pgStore, redisCache, engineClient, automationClient, m, cfg.Engine)

	// 7. Staleness sweep: recovers requests stuck in processing after a
	// crash or lost persistence write.
	budget := upstreamBudget(cfg)
	sweeper := requests.NewSweeper(pgStore, m, cfg.Sweeper.Interval, budget+cfg.Sweeper.Grace)
	go sweeper.Run(ctx)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: m.Handler(),

		SubmitHandler: handler.NewSubmitHandler(svc),
		StatusHandler: handler.NewStatusHandler(svc),
		ListHandler:   handler.NewListHandler(svc),
		DeleteHandler: handler.NewDeleteHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Submissions block on the external call, so writes must outlive
		// the slower of the two upstreams.
		WriteTimeout: budget + 30*time.Second,
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

// upstreamBudget is the longest time a submission can legitimately block on
// an external call. The server's write timeout and the sweeper's staleness
// cutoff both have to outlive it.
func upstreamBudget(cfg *config.Config) time.Duration {
	if cfg.Automation.Timeout > cfg.Engine.Timeout {
		return cfg.Automation.Timeout
	}
	return cfg.Engine.Timeout
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
