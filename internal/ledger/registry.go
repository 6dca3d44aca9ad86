package ledger

import (
	"context"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
)

// Registry tracks which bankrolls are live. The vault refuses deposits into
// a bankroll the registry does not list as active.
type Registry struct {
	mu     sync.RWMutex
	active map[domain.Address]bool
}

// NewRegistry creates a registry with bankrolls marked active.
func NewRegistry(bankrolls ...domain.Address) *Registry {
	r := &Registry{active: make(map[domain.Address]bool, len(bankrolls))}
	for _, b := range bankrolls {
		r.active[b] = true
	}
	return r
}

// SetActive marks bankroll active or retired.
func (r *Registry) SetActive(bankroll domain.Address, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[bankroll] = active
}

// IsActiveBankroll reports whether bankroll is live.
func (r *Registry) IsActiveBankroll(_ context.Context, bankroll domain.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[bankroll], nil
}
