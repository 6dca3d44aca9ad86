package repository

import (
	"context"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// OutboxRow is an outbox event with its sequence id.
type OutboxRow struct {
	SeqID int64
	domain.OutboxDraft
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// SnapshotRepository provides access to bankroll_snapshots.
type SnapshotRepository interface {
	// Insert records the pool state of every token at one instant.
	Insert(ctx context.Context, db DBTX, takenAt time.Time, pools []domain.PoolState) error

	// Latest returns the most recent snapshot row for token.
	Latest(ctx context.Context, db DBTX, token domain.Address) (*Snapshot, error)
}

// Snapshot is one persisted pool state.
type Snapshot struct {
	ID      int64     `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	domain.PoolState
}
