package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// AddPlayerReward accrues RewardBps of wager to player's reward balance.
func (b *Bankroll) AddPlayerReward(ctx context.Context, game, player domain.Address, wager domain.Amount) (domain.Amount, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Zero, err
	}
	defer release()

	if err := b.requireGame(game); err != nil {
		return domain.Zero, err
	}
	if err := domain.ValidateAmount(wager); err != nil {
		return domain.Zero, err
	}
	reward := domain.MulBps(wager, b.cfg.RewardBps)
	if reward.IsZero() {
		return domain.Zero, nil
	}

	balance := amountOf(b.rewards, player).Add(reward)
	b.rewards[player] = balance
	b.emit(ctx, domain.NewRewardEvent(domain.EventRewardsEarned, player, reward, balance, b.clock.Now()))
	return reward, nil
}

// RewardBalance returns player's unclaimed reward.
func (b *Bankroll) RewardBalance(ctx context.Context, player domain.Address) domain.Amount {
	defer b.guard.View(ctx)()
	return amountOf(b.rewards, player)
}

// ClaimRewards mints player's reward balance as the reward token. The
// balance must strictly exceed MinRewardClaim and is zeroed before minting.
func (b *Bankroll) ClaimRewards(ctx context.Context, player domain.Address) (domain.Amount, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Zero, err
	}
	defer release()

	balance := amountOf(b.rewards, player)
	if !balance.GreaterThan(b.cfg.MinRewardClaim) {
		return domain.Zero, domain.ErrInsufficientFunds(fmt.Sprintf("reward balance %s must exceed %s to claim", balance, b.cfg.MinRewardClaim))
	}

	delete(b.rewards, player)
	if err := b.book.Mint(ctx, b.cfg.RewardToken, b.cfg.Address, player, balance); err != nil {
		b.rewards[player] = balance
		return domain.Zero, domain.ErrExternalCall("mint reward token", err)
	}

	b.emit(ctx, domain.NewRewardEvent(domain.EventRewardsClaimed, player, balance, domain.Zero, b.clock.Now()))
	b.logger.Info("play rewards claimed", "player", player, "amount", balance)
	return balance, nil
}
