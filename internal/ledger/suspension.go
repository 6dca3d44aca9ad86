package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
)

// Suspend self-excludes player for duration. Fails while a suspension is
// still in effect; use IncreaseSuspensionTime to extend one.
func (b *Bankroll) Suspend(ctx context.Context, player domain.Address, duration time.Duration) (domain.Suspension, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Suspension{}, err
	}
	defer release()

	if duration <= 0 {
		return domain.Suspension{}, domain.ErrValidation("suspension duration must be positive")
	}
	now := b.clock.Now()
	if cur, ok := b.suspensions[player]; ok && cur.InEffect(now) {
		return domain.Suspension{}, domain.ErrSuspended(player, cur.Until)
	}

	s := domain.Suspension{Player: player, Until: now.Add(duration), Active: true}
	b.suspensions[player] = s
	b.emit(ctx, domain.NewSuspensionEvent(s, now))
	b.logger.Info("player suspended", "player", player, "until", s.Until)
	return s, nil
}

// IncreaseSuspensionTime extends an active suspension by extra.
func (b *Bankroll) IncreaseSuspensionTime(ctx context.Context, player domain.Address, extra time.Duration) (domain.Suspension, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Suspension{}, err
	}
	defer release()

	if extra <= 0 {
		return domain.Suspension{}, domain.ErrValidation("suspension extension must be positive")
	}
	now := b.clock.Now()
	s, ok := b.suspensions[player]
	if !ok || !s.InEffect(now) {
		return domain.Suspension{}, domain.ErrNotSuspended(player)
	}
	if domain.IsPermanent(s.Until) {
		return s, nil
	}

	s.Until = s.Until.Add(extra)
	if s.Until.After(domain.SuspendedForever) {
		s.Until = domain.SuspendedForever
	}
	b.suspensions[player] = s
	b.emit(ctx, domain.NewSuspensionEvent(s, now))
	return s, nil
}

// PermanentlyBan suspends player with no expiry.
func (b *Bankroll) PermanentlyBan(ctx context.Context, player domain.Address) (domain.Suspension, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Suspension{}, err
	}
	defer release()

	s := domain.Suspension{Player: player, Until: domain.SuspendedForever, Active: true}
	b.suspensions[player] = s
	b.emit(ctx, domain.NewSuspensionEvent(s, b.clock.Now()))
	b.logger.Info("player permanently banned", "player", player)
	return s, nil
}

// LiftSuspension clears an expired suspension. A permanent ban never expires.
func (b *Bankroll) LiftSuspension(ctx context.Context, player domain.Address) error {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	s, ok := b.suspensions[player]
	if !ok || !s.Active {
		return domain.ErrNotSuspended(player)
	}
	now := b.clock.Now()
	if s.InEffect(now) {
		return domain.ErrSuspended(player, s.Until)
	}

	s.Active = false
	b.suspensions[player] = s
	b.emit(ctx, domain.NewSuspensionEvent(s, now))
	return nil
}

// IsSuspended reports whether player may not play now, and until when.
func (b *Bankroll) IsSuspended(ctx context.Context, player domain.Address) (bool, time.Time) {
	defer b.guard.View(ctx)()
	s, ok := b.suspensions[player]
	if !ok {
		return false, time.Time{}
	}
	return s.InEffect(b.clock.Now()), s.Until
}

// Suspension returns player's record, if any.
func (b *Bankroll) Suspension(ctx context.Context, player domain.Address) (domain.Suspension, error) {
	defer b.guard.View(ctx)()
	s, ok := b.suspensions[player]
	if !ok {
		return domain.Suspension{}, domain.ErrNotFound("suspension", fmt.Sprint(player))
	}
	return s, nil
}
