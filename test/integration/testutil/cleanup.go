//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table the platform writes.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, table := range []string{"event_outbox", "bankroll_snapshots"} {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY")
	}
}
