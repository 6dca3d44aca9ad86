//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/bankroll/internal/app"
	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret    = "integration-test-secret-integration-test-secret"
	TestKeeperSecret = "integration-keeper-secret-integration-keeper"
	TestDBHost       = "localhost"
	TestDBPort       = 5435
	TestDBUser       = "bankroll"
	TestDBPass       = "bankroll"
	TestDBName       = "bankroll_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server    *httptest.Server
	Pool      *pgxpool.Pool
	Platform  *app.Platform
	Clock     *chain.ManualClock
	JWTMgr    *auth.JWTManager
	KeeperMgr *auth.KeeperAuthManager
	t         *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "bankroll")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the main database to create the test database
	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		dir := filepath.Join(findProjectRoot(), "db", "migrations")
		if err := infra.RunMigrations(testDSN(), dir, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router, a freshly assembled platform on a manual clock and the test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", TestJWTSecret)
	t.Setenv("KEEPER_SECRET", TestKeeperSecret)
	t.Setenv("ALLOW_INSECURE_DEFAULTS", "true")
	t.Setenv("FAUCET_ENABLED", "true")

	pool := getSharedPool(t)
	cfg, err := infra.LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	clock := chain.NewManualClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	hub := infra.NewEventHub(cfg.HubBuffer, logger)
	sink := repository.FanoutSink{repository.NewOutboxSink(pool, repository.NewOutboxRepository()), hub}

	platform, err := app.BuildPlatform(context.Background(), cfg, clock, sink, logger)
	if err != nil {
		t.Fatalf("build platform: %v", err)
	}
	snapshotter := app.NewSnapshotter(platform.Bankroll, repository.NewSnapshotRepository(), pool, clock, logger)

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour, 8*time.Hour)
	keeperMgr := auth.NewKeeperAuthManager(TestKeeperSecret, time.Hour)
	router := app.NewRouter(app.RouterDeps{
		Platform:        platform,
		Pool:            pool,
		Hub:             hub,
		Snapshotter:     snapshotter,
		JWTMgr:          jwtMgr,
		KeeperMgr:       keeperMgr,
		Logger:          logger,
		CORSOrigins:     "*",
		StreamKeepAlive: time.Second,
		PlayRateLimit:   100,
		PlayRateWindow:  time.Minute,
		PlayKeyTTL:      time.Hour,
		HealthTimeout:   3 * time.Second,
		FaucetEnabled:   true,
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:    server,
		Pool:      pool,
		Platform:  platform,
		Clock:     clock,
		JWTMgr:    jwtMgr,
		KeeperMgr: keeperMgr,
		t:         t,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Shutdown(context.Background())
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
