package guard

import (
	"context"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
)

// Reentrancy serializes the mutating calls of one service instance. The
// context returned by Enter is marked, so a nested call that arrives with it
// (a receive hook calling back during a payout) is rejected instead of
// deadlocking on the mutex.
type Reentrancy struct {
	name string
	mu   sync.Mutex
}

type reentrancyKey struct{ g *Reentrancy }

// NewReentrancy creates a guard for the named service.
func NewReentrancy(name string) *Reentrancy {
	return &Reentrancy{name: name}
}

// Enter acquires the guard. The caller must invoke release when done.
func (r *Reentrancy) Enter(ctx context.Context) (context.Context, func(), error) {
	if r.Held(ctx) {
		return ctx, nil, domain.ErrReentrant()
	}
	r.mu.Lock()
	return context.WithValue(ctx, reentrancyKey{r}, r.name), r.mu.Unlock, nil
}

// View locks for a read unless ctx is already inside the guard, in which
// case the state is already consistent and the lock is skipped.
func (r *Reentrancy) View(ctx context.Context) func() {
	if r.Held(ctx) {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// Held reports whether ctx was produced by Enter on this guard.
func (r *Reentrancy) Held(ctx context.Context) bool {
	return ctx.Value(reentrancyKey{r}) != nil
}
