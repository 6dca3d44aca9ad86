package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/bankroll/internal/app"
	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/handler"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	hub := infra.NewEventHub(cfg.HubBuffer, logger.With("component", "hub"))

	// Events go to the live hub and, with a database, to the outbox table
	// for the relay. Without one they are kept in memory.
	var (
		pool        *pgxpool.Pool
		durable     domain.EventSink
		snapshotter handler.Snapshotter
	)
	clock := chain.NewSystemClock(cfg.GenesisTime, cfg.BlockTime)
	if cfg.DatabaseEnabled {
		pool, err = infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")

		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		durable = repository.NewOutboxSink(pool, repository.NewOutboxRepository())
	} else {
		logger.Warn("database disabled; events are not persisted")
		durable = repository.NewBoundedMemoryOutbox(10_000)
	}

	platform, err := app.BuildPlatform(ctx, cfg, clock, repository.FanoutSink{durable, hub}, logger)
	if err != nil {
		return fmt.Errorf("build platform: %w", err)
	}

	platform.Coordinator.Start(ctx, cfg.RandomnessPollInterval)
	if pool != nil {
		s := app.NewSnapshotter(platform.Bankroll, repository.NewSnapshotRepository(), pool, clock, logger)
		s.Start(ctx, cfg.SnapshotInterval)
		snapshotter = s
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTAdminExpiry)
	keeperMgr := auth.NewKeeperAuthManager(cfg.KeeperSecret, cfg.KeeperTokenTTL)

	r := app.NewRouter(app.RouterDeps{
		Platform:        platform,
		Pool:            pool,
		Hub:             hub,
		Snapshotter:     snapshotter,
		JWTMgr:          jwtMgr,
		KeeperMgr:       keeperMgr,
		Logger:          logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		StreamKeepAlive: cfg.StreamKeepAlive,
		PlayRateLimit:   cfg.PlayRateLimit,
		PlayRateWindow:  cfg.PlayRateWindow,
		PlayKeyTTL:      cfg.PlayIdempotencyTTL,
		HealthTimeout:   cfg.DBPingTimeout,
		FaucetEnabled:   cfg.FaucetEnabled,
	})

	// Start server. No write timeout: event streams stay open.
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("bankroll server starting", "addr", addr, "block", clock.BlockNumber())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
