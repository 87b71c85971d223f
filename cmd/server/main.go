// cmd/server/main.go
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

	"golang.org/x/sync/errgroup"

	"github-trending-tracker/internal/api"
	"github-trending-tracker/internal/config"
	"github-trending-tracker/internal/fetcher"
	"github-trending-tracker/internal/github"
	"github-trending-tracker/internal/scheduler"
	"github-trending-tracker/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Open the database and bring the schema up to date
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database ready", "path", cfg.DBPath)

	// 5. Initialize application components
	ghClient := github.NewClient(cfg.GithubToken, logger)
	appFetcher := fetcher.New(ghClient, st, logger, cfg.RequestDelay)

	fetchOpts := fetcher.Options{
		Language:    cfg.FetchLanguage,
		MinStars:    cfg.MinStars,
		Topic:       cfg.FetchTopic,
		RecencyDays: cfg.RecencyDays,
		Quota:       cfg.FetchQuota,
	}
	job := func(ctx context.Context) {
		if _, err := appFetcher.Fetch(ctx, fetchOpts); err != nil {
			logger.Error("Scheduled fetch failed", "error", err)
		}
		if err := st.Purge(ctx, cfg.RetentionDays); err != nil {
			logger.Error("Scheduled purge failed", "error", err)
		}
	}
	sched := scheduler.New(cfg.FetchInterval, job, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(st, logger, cfg.PageSize),
	}

	// 6. Run the scheduler and the HTTP server until a shutdown signal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Application started. Waiting for shutdown signal...")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
