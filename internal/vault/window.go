package vault

import (
	"context"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
)

// window returns epoch k's withdrawal window under the current schedule.
func (v *Vault) window(k uint64) domain.WithdrawWindow {
	opens := v.deployedAt.Add(time.Duration(k)*v.cfg.EpochRate + v.cfg.ClaimRate)
	return domain.WithdrawWindow{Epoch: k, Opens: opens, Closes: opens.Add(v.cfg.ClaimWindow)}
}

// epochAt is the index of the epoch containing t.
func (v *Vault) epochAt(t time.Time) uint64 {
	if t.Before(v.deployedAt) {
		return 0
	}
	return uint64(t.Sub(v.deployedAt) / v.cfg.EpochRate)
}

// windowAt searches back from the current epoch for a window containing t.
// A claim delay longer than an epoch makes older epochs' windows land in
// the present, so one modular check is not enough.
func (v *Vault) windowAt(t time.Time) (domain.WithdrawWindow, bool) {
	current := v.epochAt(t)
	for i := 0; i <= v.cfg.MaxWindowSearch; i++ {
		if uint64(i) > current {
			break
		}
		w := v.window(current - uint64(i))
		if w.Contains(t) {
			return w, true
		}
	}
	return domain.WithdrawWindow{}, false
}

// nextWindow searches for the earliest window opening after t.
func (v *Vault) nextWindow(t time.Time) (domain.WithdrawWindow, bool) {
	current := v.epochAt(t)
	start := uint64(0)
	if current > uint64(v.cfg.MaxWindowSearch) {
		start = current - uint64(v.cfg.MaxWindowSearch)
	}
	for k := start; k <= current+uint64(v.cfg.MaxWindowSearch); k++ {
		if w := v.window(k); w.Opens.After(t) {
			return w, true
		}
	}
	return domain.WithdrawWindow{}, false
}

// IsInWithdrawWindow reports whether withdrawals are open now.
func (v *Vault) IsInWithdrawWindow(ctx context.Context) bool {
	defer v.guard.View(ctx)()
	_, open := v.windowAt(v.clock.Now())
	return open
}

// RemainingLockup reports the open window and time until it closes, or the
// next window and time until it opens.
func (v *Vault) RemainingLockup(ctx context.Context) domain.Lockup {
	defer v.guard.View(ctx)()
	now := v.clock.Now()
	if w, open := v.windowAt(now); open {
		return domain.Lockup{Open: true, Window: w, Remaining: w.Closes.Sub(now)}
	}
	if w, ok := v.nextWindow(now); ok {
		return domain.Lockup{Window: w, Remaining: w.Opens.Sub(now)}
	}
	return domain.Lockup{}
}

// StakeUnlocksAt is when lp's latest deposit clears the lock period.
func (v *Vault) StakeUnlocksAt(ctx context.Context, token, lp domain.Address) (time.Time, error) {
	defer v.guard.View(ctx)()
	p, err := v.pool(token)
	if err != nil {
		return time.Time{}, err
	}
	s, ok := p.stakes[lp]
	if !ok {
		return time.Time{}, domain.ErrNotFound("stake", string(lp))
	}
	return s.LastDepositTime.Add(v.cfg.LockPeriod), nil
}
