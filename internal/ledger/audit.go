package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// AuditReport is the result of checking every token's accounting.
type AuditReport struct {
	Pools      []domain.PoolState `json:"pools"`
	Invariants []InvariantCheck   `json:"invariants"`
	AllPassed  bool               `json:"all_passed"`
}

// Tokens lists every asset the bankroll can hold: native first, then the
// registered tokens.
func (b *Bankroll) Tokens() []domain.Address {
	tokens := []domain.Address{domain.NativeToken}
	for _, t := range b.book.Tokens() {
		tokens = append(tokens, t.Address)
	}
	return tokens
}

// Snapshot returns the pool state of every token.
func (b *Bankroll) Snapshot(ctx context.Context) []domain.PoolState {
	defer b.guard.View(ctx)()
	tokens := b.Tokens()
	out := make([]domain.PoolState, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, b.poolState(t))
	}
	return out
}

// Audit validates the accounting invariants for every token:
//  1. Reserved funds never exceed the total balance
//  2. Unswept fees are covered by custody
//  3. No tracked amount is negative
func (b *Bankroll) Audit(ctx context.Context) AuditReport {
	defer b.guard.View(ctx)()

	report := AuditReport{AllPassed: true}
	for _, token := range b.Tokens() {
		state := b.poolState(token)
		report.Pools = append(report.Pools, state)
		for _, chk := range b.checkToken(token, state) {
			if !chk.Passed {
				report.AllPassed = false
			}
			report.Invariants = append(report.Invariants, chk)
		}
	}
	return report
}

func (b *Bankroll) checkToken(token domain.Address, state domain.PoolState) []InvariantCheck {
	checks := make([]InvariantCheck, 0, 3)
	custody := b.book.BalanceOf(token, b.cfg.Address)

	// Invariant 1: reserved <= total
	checks = append(checks, InvariantCheck{
		Name:   "reserved_within_total:" + string(token),
		Passed: state.Reserved.LessThanOrEqual(state.TotalBalance),
		Detail: fmt.Sprintf("reserved=%s total=%s", state.Reserved, state.TotalBalance),
	})

	// Invariant 2: fee accrual backed by custody
	checks = append(checks, InvariantCheck{
		Name:   "fees_covered:" + string(token),
		Passed: state.FeesAccrued.LessThanOrEqual(custody),
		Detail: fmt.Sprintf("fees=%s custody=%s", state.FeesAccrued, custody),
	})

	// Invariant 3: non-negativity
	nonNegative := !state.Reserved.IsNegative() && !state.FeesAccrued.IsNegative()
	for _, v := range b.rewards {
		if v.IsNegative() {
			nonNegative = false
		}
	}
	checks = append(checks, InvariantCheck{
		Name:   "non_negative:" + string(token),
		Passed: nonNegative,
		Detail: fmt.Sprintf("reserved=%s fees=%s", state.Reserved, state.FeesAccrued),
	})

	return checks
}
