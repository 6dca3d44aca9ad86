package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/domain"
)

// Call is a raw call issued by Execute.
type Call struct {
	To    domain.Address `json:"to"`
	Value domain.Amount  `json:"value"`
	Data  []byte         `json:"data,omitempty"`
}

// SetVault designates the liquidity vault allowed to fund and withdraw.
func (b *Bankroll) SetVault(ctx context.Context, caller, vault domain.Address) error {
	_, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := b.requireOwner(caller); err != nil {
		return err
	}
	b.vault = vault
	return nil
}

// Vault returns the designated liquidity vault.
func (b *Bankroll) Vault(ctx context.Context) domain.Address {
	defer b.guard.View(ctx)()
	return b.vault
}

// RegisterGame allowlists a game service with its creator revenue share.
func (b *Bankroll) RegisterGame(ctx context.Context, caller domain.Address, reg domain.GameRegistration) error {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if caller != b.cfg.Owner && caller != b.cfg.Registry {
		return domain.ErrForbidden(fmt.Sprintf("%s may not register games", caller))
	}
	if err := domain.ValidateAddress(reg.Game); err != nil {
		return err
	}
	if reg.GameID == "" {
		return domain.ErrValidation("game id is required")
	}
	if err := domain.ValidateBps(reg.CreatorBps, b.cfg.MaxCreatorShareBps, "creator share"); err != nil {
		return err
	}
	if reg.CreatorBps > 0 && reg.Creator.IsZero() {
		return domain.ErrValidation("creator address is required for a creator share")
	}

	b.games[reg.Game] = reg
	if b.enabled[reg.Game] == nil {
		b.enabled[reg.Game] = make(map[domain.Address]bool)
	}
	b.emit(ctx, domain.NewEvent(domain.AggregateBankroll, string(reg.Game), domain.EventGameRegistered, reg, b.clock.Now()))
	b.logger.Info("game registered", "game", reg.Game, "game_id", reg.GameID, "creator_bps", reg.CreatorBps)
	return nil
}

// RemoveGame revokes a game's access to the bankroll.
func (b *Bankroll) RemoveGame(ctx context.Context, caller, game domain.Address) error {
	_, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := b.requireOwner(caller); err != nil {
		return err
	}
	if _, ok := b.games[game]; !ok {
		return domain.ErrNotFound("game", string(game))
	}
	delete(b.games, game)
	delete(b.enabled, game)
	return nil
}

// SetTokenEnabled allows or disallows wagers in token for game.
func (b *Bankroll) SetTokenEnabled(ctx context.Context, caller, game, token domain.Address, enabled bool) error {
	_, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := b.requireOwner(caller); err != nil {
		return err
	}
	if _, ok := b.games[game]; !ok {
		return domain.ErrNotFound("game", string(game))
	}
	if _, err := b.book.Decimals(token); err != nil {
		return err
	}
	b.enabled[game][token] = enabled
	return nil
}

// IsValidWager reports whether game may take wagers in token.
func (b *Bankroll) IsValidWager(ctx context.Context, game, token domain.Address) bool {
	defer b.guard.View(ctx)()
	if _, ok := b.games[game]; !ok {
		return false
	}
	return b.enabled[game][token]
}

// Game returns a registered game.
func (b *Bankroll) Game(ctx context.Context, game domain.Address) (domain.GameRegistration, bool) {
	defer b.guard.View(ctx)()
	reg, ok := b.games[game]
	return reg, ok
}

// Execute is the migration escape hatch: a raw native call from custody,
// restricted to the owner and the registry. It cannot spend reserved funds.
// Authorization failures are returned as errors; the call's own outcome is
// in the result.
func (b *Bankroll) Execute(ctx context.Context, caller domain.Address, call Call) (asset.CallResult, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return asset.CallResult{}, err
	}
	defer release()

	if caller != b.cfg.Owner && caller != b.cfg.Registry {
		return asset.CallResult{}, domain.ErrForbidden(fmt.Sprintf("%s may not execute", caller))
	}
	if err := domain.ValidateAddress(call.To); err != nil {
		return asset.CallResult{}, err
	}
	if err := domain.ValidateAmount(call.Value); err != nil {
		return asset.CallResult{}, err
	}
	available := b.availableBalance(domain.NativeToken)
	if call.Value.GreaterThan(available) {
		return asset.CallResult{}, domain.ErrInsufficientFunds(fmt.Sprintf("call value %s exceeds available %s", call.Value, available))
	}

	result := b.book.Call(ctx, b.cfg.Address, call.To, call.Value, call.Data)
	b.emit(ctx, domain.NewEvent(domain.AggregateBankroll, string(domain.NativeToken), domain.EventExecuted, map[string]interface{}{
		"caller":  caller,
		"to":      call.To,
		"value":   call.Value,
		"success": result.Success,
	}, b.clock.Now()))
	b.logger.Warn("bankroll execute", "caller", caller, "to", call.To, "value", call.Value, "success", result.Success)
	return result, nil
}
