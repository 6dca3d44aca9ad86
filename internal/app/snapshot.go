package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/attaboy/bankroll/internal/repository"
)

// Snapshotter records bankroll pool states for reporting.
type Snapshotter struct {
	bankroll *ledger.Bankroll
	repo     repository.SnapshotRepository
	db       repository.DBTX
	clock    chain.Clock
	logger   *slog.Logger
}

// NewSnapshotter creates a Snapshotter writing through repo.
func NewSnapshotter(bankroll *ledger.Bankroll, repo repository.SnapshotRepository, db repository.DBTX, clock chain.Clock, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{bankroll: bankroll, repo: repo, db: db, clock: clock, logger: logger}
}

// Snapshot persists every pool's current state and returns it.
func (s *Snapshotter) Snapshot(ctx context.Context) ([]domain.PoolState, error) {
	pools := s.bankroll.Snapshot(ctx)
	if err := s.repo.Insert(ctx, s.db, s.clock.Now(), pools); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return pools, nil
}

// Latest returns the newest stored snapshot for token.
func (s *Snapshotter) Latest(ctx context.Context, token domain.Address) (*repository.Snapshot, error) {
	return s.repo.Latest(ctx, s.db, token)
}

// Start snapshots every interval in a goroutine. Stops when ctx is cancelled.
func (s *Snapshotter) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("bankroll snapshotter started", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("bankroll snapshotter stopped")
				return
			case <-ticker.C:
				pools, err := s.Snapshot(ctx)
				if err != nil {
					s.logger.Error("snapshot failed", "error", err)
					continue
				}
				s.logger.Debug("snapshot taken", "pools", len(pools))
			}
		}
	}()
}
