package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type snapshotRepo struct{}

// NewSnapshotRepository returns a pgx-backed SnapshotRepository.
func NewSnapshotRepository() SnapshotRepository {
	return &snapshotRepo{}
}

func (r *snapshotRepo) Insert(ctx context.Context, db DBTX, takenAt time.Time, pools []domain.PoolState) error {
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO bankroll_snapshots
			  (token, total_balance, reserved, available, fees_accrued, taken_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(p.Token),
			infra.AmountToNumeric(p.TotalBalance),
			infra.AmountToNumeric(p.Reserved),
			infra.AmountToNumeric(p.Available),
			infra.AmountToNumeric(p.FeesAccrued),
			takenAt,
		)
	}

	// pgxpool.Pool and pgx.Tx both send batches.
	sender, ok := db.(batchSender)
	if !ok {
		return fmt.Errorf("insert snapshots: connection does not support batches")
	}
	br := sender.SendBatch(ctx, batch)
	defer br.Close()
	for i := range pools {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", pools[i].Token, err)
		}
	}
	return nil
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (r *snapshotRepo) Latest(ctx context.Context, db DBTX, token domain.Address) (*Snapshot, error) {
	var (
		s                                    Snapshot
		tokenStr                             string
		total, reserved, available, feesAccr pgtype.Numeric
	)
	err := db.QueryRow(ctx, `
		SELECT id, token, total_balance, reserved, available, fees_accrued, taken_at
		FROM bankroll_snapshots
		WHERE token = $1
		ORDER BY taken_at DESC, id DESC
		LIMIT 1`, string(token)).
		Scan(&s.ID, &tokenStr, &total, &reserved, &available, &feesAccr, &s.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("snapshot", string(token))
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	s.Token = domain.Address(tokenStr)
	for _, f := range []struct {
		dst *domain.Amount
		src pgtype.Numeric
	}{
		{&s.TotalBalance, total},
		{&s.Reserved, reserved},
		{&s.Available, available},
		{&s.FeesAccrued, feesAccr},
	} {
		v, err := infra.NumericToAmount(f.src)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		*f.dst = v
	}
	return &s, nil
}
