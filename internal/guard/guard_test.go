package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "test-key")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "test-key")
	rl.Check(ctx, "test-key")
	result := rl.Check(ctx, "test-key")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	r1 := rl.Check(ctx, "key-a")
	r2 := rl.Check(ctx, "key-b")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	ctx := context.Background()

	result := cb.Check(ctx, "plugin-a")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "plugin-a")
	cb.RecordFailure("plugin-a")
	cb.RecordFailure("plugin-a")

	result := cb.Check(ctx, "plugin-a")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "plugin-a")
	cb.RecordFailure("plugin-a")
	cb.RecordSuccess("plugin-a")

	result := cb.Check(ctx, "plugin-a")
	assert.True(t, result.Allowed)
}

func TestIdempotencyGuard_AllowsFirst(t *testing.T) {
	ig := NewIdempotencyGuard(time.Hour)
	ctx := context.Background()

	result := ig.Check(ctx, "req-123")
	assert.True(t, result.Allowed)
}

func TestIdempotencyGuard_BlocksDuplicate(t *testing.T) {
	ig := NewIdempotencyGuard(time.Hour)
	ctx := context.Background()

	ig.Check(ctx, "req-123")
	result := ig.Check(ctx, "req-123")

	assert.False(t, result.Allowed)
	assert.Equal(t, "idempotency", result.Guard)
}

func TestIdempotencyGuard_EmptyKeyAllowed(t *testing.T) {
	ig := NewIdempotencyGuard(time.Hour)
	ctx := context.Background()

	r1 := ig.Check(ctx, "")
	r2 := ig.Check(ctx, "")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestIdempotencyGuard_RemoveAllowsRetry(t *testing.T) {
	ig := NewIdempotencyGuard(time.Hour)
	ctx := context.Background()

	ig.Check(ctx, "req-456")
	ig.Remove("req-456")

	result := ig.Check(ctx, "req-456")
	require.True(t, result.Allowed)
}

func TestIdempotencyGuard_KeysExpire(t *testing.T) {
	now := time.Unix(1000, 0)
	ig := NewIdempotencyGuard(time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.True(t, ig.Check(ctx, "0xplayer:a").Allowed)
	require.True(t, ig.Check(ctx, "0xplayer:b").Allowed)
	assert.False(t, ig.Check(ctx, "0xplayer:a").Allowed)
	assert.Equal(t, 2, ig.Len())

	now = now.Add(time.Minute)
	assert.True(t, ig.Check(ctx, "0xplayer:a").Allowed, "expired key is usable again")
	assert.Equal(t, 1, ig.Len(), "expired keys are swept")

	now = now.Add(2 * time.Minute)
	assert.True(t, ig.Check(ctx, "0xplayer:c").Allowed)
	assert.Equal(t, 1, ig.Len())
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "0xplayer").Allowed)
	assert.False(t, rl.Check(ctx, "0xplayer").Allowed)

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Check(ctx, "0xplayer").Allowed)
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(1, 10*time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	cb.Check(ctx, "random.org")
	cb.RecordFailure("random.org")
	assert.Equal(t, CircuitOpen, cb.State("random.org"))
	assert.False(t, cb.Check(ctx, "random.org").Allowed)

	now = now.Add(11 * time.Second)
	assert.True(t, cb.Check(ctx, "random.org").Allowed)
	assert.Equal(t, CircuitHalfOpen, cb.State("random.org"))

	cb.RecordSuccess("random.org")
	assert.Equal(t, CircuitClosed, cb.State("random.org"))
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(3, 10*time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	cb.Check(ctx, "feed")
	for i := 0; i < 3; i++ {
		cb.RecordFailure("feed")
	}
	now = now.Add(11 * time.Second)
	require.True(t, cb.Check(ctx, "feed").Allowed)

	cb.RecordFailure("feed")
	assert.Equal(t, CircuitOpen, cb.State("feed"))
	assert.Equal(t, "open", cb.State("feed").String())
}

// --- Reentrancy Tests ---

func TestReentrancy_RejectsNestedCall(t *testing.T) {
	g := NewReentrancy("ledger")

	ctx, release, err := g.Enter(context.Background())
	require.NoError(t, err)
	defer release()

	assert.True(t, g.Held(ctx))
	_, _, err = g.Enter(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REENTRANT_CALL")
}

func TestReentrancy_IndependentGuards(t *testing.T) {
	settlement := NewReentrancy("settlement")
	ledger := NewReentrancy("ledger")

	ctx, releaseOuter, err := settlement.Enter(context.Background())
	require.NoError(t, err)
	defer releaseOuter()

	inner, releaseInner, err := ledger.Enter(ctx)
	require.NoError(t, err)
	defer releaseInner()

	assert.True(t, settlement.Held(inner))
	assert.True(t, ledger.Held(inner))
}

func TestReentrancy_ViewInsideGuardDoesNotBlock(t *testing.T) {
	g := NewReentrancy("vault")
	ctx, release, err := g.Enter(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		unlock := g.View(ctx)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("view blocked while guard held by same context")
	}
	release()
}

func TestReentrancy_SerializesCallers(t *testing.T) {
	g := NewReentrancy("ledger")
	_, release, err := g.Enter(context.Background())
	require.NoError(t, err)

	entered := make(chan struct{})
	go func() {
		_, rel, err := g.Enter(context.Background())
		if err == nil {
			rel()
		}
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("second caller entered while guard held")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	<-entered
}
