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

	"github.com/spf13/cobra"

	"github.com/terra-clan/assessment-engine/internal/api"
	"github.com/terra-clan/assessment-engine/internal/assessment"
	"github.com/terra-clan/assessment-engine/internal/catalog"
	"github.com/terra-clan/assessment-engine/internal/config"
	"github.com/terra-clan/assessment-engine/internal/logging"
	"github.com/terra-clan/assessment-engine/internal/report"
	"github.com/terra-clan/assessment-engine/internal/scoring"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)

	slog.Info("starting assessment-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Error("repository close error", "error", err)
		}
	}()

	loader, err := catalog.NewLoader()
	if err != nil {
		return fmt.Errorf("failed to create catalog loader: %w", err)
	}
	if _, err := loader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", cfg.Catalog.Dir, "error", err)
	}

	scorer := scoring.NewEngine(
		scoring.DefaultRegistry(cfg.Scoring.YesToken, cfg.Scoring.NoToken),
		scoring.Policy{DefaultCeiling: cfg.Scoring.DefaultCeiling},
	)
	synthesizer := report.NewSynthesizer(report.Policy{
		StrongThreshold:      cfg.Scoring.StrongThreshold,
		ModerateThreshold:    cfg.Scoring.ModerateThreshold,
		StrengthThreshold:    cfg.Scoring.StrengthThreshold,
		GrowthThreshold:      cfg.Scoring.GrowthThreshold,
		IntervalStrongDays:   cfg.Scoring.IntervalStrongDays,
		IntervalModerateDays: cfg.Scoring.IntervalModerateDays,
		IntervalGrowthDays:   cfg.Scoring.IntervalGrowthDays,
	})
	engine := assessment.NewEngine(loader, repo, scorer, synthesizer)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog.NewRefresher(loader, cfg.Catalog.Dir, cfg.Catalog.RefreshInterval).Start(ctx)

	server := api.NewServer(cfg, engine, loader, repo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
		return err
	}

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("assessment-engine stopped")
	return nil
}

// openRepository builds the configured backend and wraps it with retries
// and, when Redis is configured, the result cache
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	var repo storage.Repository

	switch cfg.Database.Driver {
	case "postgres":
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		applied, err := storage.MigrateFromDSN(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("migrations complete", "applied", len(applied))

		pg, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			return nil, err
		}
		repo = pg
	case "sqlite":
		lite, err := storage.NewSQLiteRepository(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		repo = lite
	case "memory":
		slog.Warn("using in-memory repository; data is lost on restart")
		repo = storage.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
	slog.Info("database connected successfully", "driver", cfg.Database.Driver)

	repo = storage.WithRetry(repo, storage.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		InitialWait: cfg.Retry.InitialWait,
		MaxWait:     cfg.Retry.MaxWait,
		Multiplier:  cfg.Retry.Multiplier,
	})

	if cfg.Redis.Address == "" {
		return repo, nil
	}

	cache, err := storage.NewRedisResultCache(ctx, storage.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.ResultTTL,
	})
	if err != nil {
		// the cache is optional; results are always read from the database on a miss
		slog.Warn("result cache disabled", "address", cfg.Redis.Address, "error", err)
		return repo, nil
	}
	slog.Info("result cache enabled", "address", cfg.Redis.Address, "ttl", cfg.Redis.ResultTTL)
	return storage.WithResultCache(repo, cache), nil
}
