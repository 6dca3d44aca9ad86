package guard

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
)

// IdempotencyGuard deduplicates play submissions by Idempotency-Key. A key
// is remembered for ttl after its first use; expired keys are swept on
// Check so the set stays bounded by the submission rate.
type IdempotencyGuard struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	expires   map[string]time.Time
	lastSweep time.Time
}

// NewIdempotencyGuard creates an in-memory guard remembering keys for ttl.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// WithClock replaces the guard's time source.
func (ig *IdempotencyGuard) WithClock(now func() time.Time) *IdempotencyGuard {
	ig.now = now
	return ig
}

// Check returns whether the given key has already been used within ttl.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	ig.sweep(now)

	if exp, ok := ig.expires[key]; ok && now.Before(exp) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already processed",
			Guard:   "idempotency",
		}
	}

	ig.expires[key] = now.Add(ig.ttl)
	return domain.GuardResult{Allowed: true}
}

// Remove forgets a key so a rejected submission can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.expires, key)
}

// Len returns the number of remembered keys.
func (ig *IdempotencyGuard) Len() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return len(ig.expires)
}

// sweep drops expired keys, at most once per ttl.
func (ig *IdempotencyGuard) sweep(now time.Time) {
	if now.Sub(ig.lastSweep) < ig.ttl {
		return
	}
	for k, exp := range ig.expires {
		if !now.Before(exp) {
			delete(ig.expires, k)
		}
	}
	ig.lastSweep = now
}
