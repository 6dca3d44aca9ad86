package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
)

// accrue advances a pool's reward accumulator to now. Whole seconds only;
// the remainder carries into the next accrual.
func (v *Vault) accrue(p *pool) {
	now := v.clock.Now()
	if !now.After(p.LastRewardTime) {
		return
	}
	if !p.TotalShares.IsPositive() {
		p.LastRewardTime = now
		return
	}
	elapsed := int64(now.Sub(p.LastRewardTime) / time.Second)
	if elapsed == 0 {
		return
	}
	p.AccRewardPerShare = p.AccRewardPerShare.Add(v.accIncrement(p, elapsed))
	p.LastRewardTime = p.LastRewardTime.Add(time.Duration(elapsed) * time.Second)
}

func (v *Vault) accIncrement(p *pool, elapsed int64) domain.Amount {
	emitted := normalize(p.RewardRate, p.Decimals).Mul(domain.NewAmount(elapsed))
	return domain.MulDiv(emitted, accPrecision, p.TotalShares)
}

// projected returns the pool as accrue would leave it, without mutating.
func (v *Vault) projected(p *pool) domain.StakingPool {
	out := p.StakingPool
	now := v.clock.Now()
	if !p.TotalShares.IsPositive() || !now.After(p.LastRewardTime) {
		return out
	}
	if elapsed := int64(now.Sub(p.LastRewardTime) / time.Second); elapsed > 0 {
		out.AccRewardPerShare = out.AccRewardPerShare.Add(v.accIncrement(p, elapsed))
	}
	return out
}

// harvest moves s's accrued reward into PendingRewards. The caller resets
// RewardDebt after changing Shares.
func (v *Vault) harvest(p *pool, s *domain.UserStake) {
	earned := domain.SubFloor(domain.MulDiv(s.Shares, p.AccRewardPerShare, accPrecision), s.RewardDebt)
	s.PendingRewards = s.PendingRewards.Add(earned)
	s.RewardDebt = domain.MulDiv(s.Shares, p.AccRewardPerShare, accPrecision)
}

// PendingRewards is lp's unclaimed reward in normalized units.
func (v *Vault) PendingRewards(ctx context.Context, token, lp domain.Address) (domain.Amount, error) {
	defer v.guard.View(ctx)()
	p, err := v.pool(token)
	if err != nil {
		return domain.Zero, err
	}
	s, ok := p.stakes[lp]
	if !ok {
		return domain.Zero, nil
	}
	acc := v.projected(p).AccRewardPerShare
	earned := domain.SubFloor(domain.MulDiv(s.Shares, acc, accPrecision), s.RewardDebt)
	return s.PendingRewards.Add(earned), nil
}

// DistributeRewards adds a lump-sum reward to a pool, split pro rata over
// current shares. The amount is pulled from caller into the reward reserve.
func (v *Vault) DistributeRewards(ctx context.Context, caller, token domain.Address, amount domain.Amount) error {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return err
	}
	p, err := v.pool(token)
	if err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(amount, "reward"); err != nil {
		return err
	}
	if !p.TotalShares.IsPositive() {
		return domain.ErrConflict(fmt.Sprintf("pool for %s has no stakers", token))
	}
	if err := v.pull(ctx, token, caller, amount); err != nil {
		return err
	}

	v.accrue(p)
	p.AccRewardPerShare = p.AccRewardPerShare.Add(domain.MulDiv(normalize(amount, p.Decimals), accPrecision, p.TotalShares))
	p.rewardReserve = p.rewardReserve.Add(amount)

	v.emit(ctx, domain.NewVaultEvent(domain.EventVaultRewardsAdded, token, "", map[string]interface{}{
		"amount": amount,
		"acc":    p.AccRewardPerShare,
	}, v.clock.Now()))
	v.logger.Info("vault rewards distributed", "token", token, "amount", amount)
	return nil
}

// FundRewards tops up the reserve that pays time-based emissions.
func (v *Vault) FundRewards(ctx context.Context, caller, token domain.Address, amount domain.Amount) error {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	p, err := v.pool(token)
	if err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(amount, "reward funding"); err != nil {
		return err
	}
	if err := v.pull(ctx, token, caller, amount); err != nil {
		return err
	}
	p.rewardReserve = p.rewardReserve.Add(amount)
	v.logger.Debug("vault reward reserve funded", "token", token, "from", caller, "amount", amount)
	return nil
}

// ClaimRewards pays lp's pending reward less the performance fee. Returns
// the amount paid to lp.
func (v *Vault) ClaimRewards(ctx context.Context, lp, token domain.Address) (domain.Amount, error) {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return domain.Zero, err
	}
	defer release()

	p, err := v.pool(token)
	if err != nil {
		return domain.Zero, err
	}
	s, ok := p.stakes[lp]
	if !ok {
		return domain.Zero, domain.ErrZeroAmount("reward claim")
	}

	v.accrue(p)
	v.harvest(p, s)
	gross := denormalize(s.PendingRewards, p.Decimals)
	if !gross.IsPositive() {
		return domain.Zero, domain.ErrZeroAmount("reward claim")
	}
	if gross.GreaterThan(p.rewardReserve) {
		return domain.Zero, domain.ErrInsufficientFunds(fmt.Sprintf("reward %s exceeds reserve %s", gross, p.rewardReserve))
	}

	fee := domain.MulBps(gross, v.cfg.PerformanceFeeBps)
	net := gross.Sub(fee)
	prevPending := s.PendingRewards
	s.PendingRewards = s.PendingRewards.Sub(normalize(gross, p.Decimals))
	p.rewardReserve = p.rewardReserve.Sub(gross)

	if err := v.send(ctx, token, lp, net); err != nil {
		s.PendingRewards = prevPending
		p.rewardReserve = p.rewardReserve.Add(gross)
		return domain.Zero, err
	}
	if fee.IsPositive() {
		if err := v.send(ctx, token, v.cfg.FeeRecipient, fee); err != nil {
			v.logger.Error("pay performance fee", "token", token, "fee", fee, "error", err)
			p.rewardReserve = p.rewardReserve.Add(fee)
		}
	}

	v.emit(ctx, domain.NewVaultEvent(domain.EventVaultRewardsClaimed, token, lp, map[string]interface{}{
		"amount": net,
		"fee":    fee,
	}, v.clock.Now()))
	v.logger.Info("vault rewards claimed", "lp", lp, "token", token, "amount", net, "fee", fee)
	return net, nil
}
