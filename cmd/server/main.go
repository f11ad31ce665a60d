// Package main is the entrypoint for the ImageTagger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/imagetagger/internal/api"
	"github.com/kiranshivaraju/imagetagger/internal/api/handler"
	mw "github.com/kiranshivaraju/imagetagger/internal/api/middleware"
	"github.com/kiranshivaraju/imagetagger/internal/api/response"
	"github.com/kiranshivaraju/imagetagger/internal/cache"
	"github.com/kiranshivaraju/imagetagger/internal/config"
	"github.com/kiranshivaraju/imagetagger/internal/engine"
	"github.com/kiranshivaraju/imagetagger/internal/metadata"
	"github.com/kiranshivaraju/imagetagger/internal/ratelimit"
	"github.com/kiranshivaraju/imagetagger/internal/store"
	"github.com/kiranshivaraju/imagetagger/internal/tagging"
	"github.com/kiranshivaraju/imagetagger/internal/thumbnail"
	"github.com/kiranshivaraju/imagetagger/internal/vision"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(cfg.Server.LogFile)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database; runs stay in memory if none is configured
	var st store.Store = store.NoopStore{}
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		st = store.NewPostgresStore(pool)
		slog.Info("database connected, migrations applied")
	} else {
		slog.Info("no DATABASE_URL configured, run history disabled")
	}

	// 3. Result cache: Redis when configured, in-memory otherwise
	var resultCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		resultCache = redisCache
		slog.Info("redis connected")
	} else {
		resultCache = cache.NewMemoryCache()
		slog.Info("no REDIS_URL configured, using in-memory result cache")
	}
	defer resultCache.Close()

	// 4. Create vision provider
	provider, err := vision.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create vision provider: %w", err)
	}
	slog.Info("vision provider initialized", "provider", provider.Name())

	// 5. Build the tagging pipeline
	limiter := ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)
	eng := engine.New(provider, thumbnail.New(), metadata.New(), limiter)
	svc := tagging.NewService(eng, st, resultCache,
		provider.Name(), cfg.AI.DefaultModel(), cfg.Tagging)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Server.APITokenHash),
		RateLimit: mw.NewRateLimit(resultCache, 60),

		HealthHandler: healthHandler(st, resultCache),

		StartRunHandler:    handler.NewStartRunHandler(svc),
		ListRunsHandler:    handler.NewListRunsHandler(svc),
		GetRunHandler:      handler.NewGetRunHandler(svc),
		PauseRunHandler:    handler.NewControlHandler(svc, handler.PauseAction),
		ResumeRunHandler:   handler.NewControlHandler(svc, handler.ResumeAction),
		StopRunHandler:     handler.NewControlHandler(svc, handler.StopAction),
		ListResultsHandler: handler.NewListResultsHandler(svc),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	// An active run keeps going until stopped; only the HTTP surface drains.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// setupLogging installs the default JSON logger, teeing to a log file when
// one is configured. The returned file, if any, should be closed on exit.
func setupLogging(path string) (*os.File, error) {
	var out io.Writer = os.Stdout
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return f, nil
}

// healthHandler checks store and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store": "ok",
			"cache": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["store"] != "ok" || checks["cache"] != "ok"
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
