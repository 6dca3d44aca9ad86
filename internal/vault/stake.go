package vault

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// Deposit stakes amount of token from lp into the bankroll. Token deposits
// need a prior allowance for the vault; native deposits are sent directly.
// Shares are minted on the amount the bankroll credits after its fee.
func (v *Vault) Deposit(ctx context.Context, lp, token domain.Address, amount domain.Amount) (domain.UserStake, error) {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return domain.UserStake{}, err
	}
	defer release()

	if err := domain.ValidateAddress(lp); err != nil {
		return domain.UserStake{}, err
	}
	p, ok := v.pools[token]
	if !ok {
		return domain.UserStake{}, domain.ErrUnsupportedToken(token)
	}
	if !p.Active {
		return domain.UserStake{}, domain.ErrPoolInactive(token)
	}
	if err := domain.ValidatePositiveAmount(amount, "deposit"); err != nil {
		return domain.UserStake{}, err
	}
	if !v.bankrollActive(ctx) {
		return domain.UserStake{}, domain.ErrPoolInactive(token)
	}

	if err := v.pull(ctx, token, lp, amount); err != nil {
		return domain.UserStake{}, err
	}
	if !token.IsNative() {
		if err := v.book.Approve(token, v.cfg.Address, v.ledger.Address(), amount); err != nil {
			v.refund(ctx, token, lp, amount)
			return domain.UserStake{}, fmt.Errorf("approve bankroll: %w", err)
		}
	}
	split, err := v.ledger.FundBankroll(ctx, v.cfg.Address, token, amount)
	if err != nil {
		v.refund(ctx, token, lp, amount)
		return domain.UserStake{}, fmt.Errorf("fund bankroll: %w", err)
	}

	v.accrue(p)
	norm := normalize(split.Net, p.Decimals)
	shares := norm
	if p.TotalShares.IsPositive() {
		shares = domain.MulDiv(norm, p.TotalShares, p.TotalStaked)
	}
	if !shares.IsPositive() {
		v.logger.Warn("vault deposit minted no shares", "lp", lp, "token", token, "amount", amount)
	}

	s := v.stakeOf(p, lp)
	v.harvest(p, s)
	s.Shares = s.Shares.Add(shares)
	s.RewardDebt = domain.MulDiv(s.Shares, p.AccRewardPerShare, accPrecision)
	s.LastDepositTime = v.clock.Now()
	p.TotalShares = p.TotalShares.Add(shares)
	p.TotalStaked = p.TotalStaked.Add(norm)

	v.emit(ctx, domain.NewVaultEvent(domain.EventVaultDeposit, token, lp, map[string]interface{}{
		"amount": amount,
		"net":    split.Net,
		"shares": shares,
	}, v.clock.Now()))
	v.logger.Info("vault deposit", "lp", lp, "token", token, "amount", amount, "shares", shares)
	return *s, nil
}

// Withdraw redeems shares for their proportional token amount, paid from
// the bankroll straight to lp. Only inside a withdrawal window and after
// the lock period since lp's last deposit.
func (v *Vault) Withdraw(ctx context.Context, lp, token domain.Address, shares domain.Amount) (domain.Amount, error) {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return domain.Zero, err
	}
	defer release()

	p, err := v.pool(token)
	if err != nil {
		return domain.Zero, err
	}
	if err := domain.ValidatePositiveAmount(shares, "shares"); err != nil {
		return domain.Zero, err
	}
	now := v.clock.Now()
	if _, open := v.windowAt(now); !open {
		return domain.Zero, domain.ErrOutsideWindow()
	}
	s, ok := p.stakes[lp]
	if !ok || s.Shares.LessThan(shares) {
		return domain.Zero, domain.ErrInsufficientFunds(fmt.Sprintf("withdraw %s shares exceeds held", shares))
	}
	if unlock := s.LastDepositTime.Add(v.cfg.LockPeriod); now.Before(unlock) {
		return domain.Zero, domain.ErrLockPeriod(unlock.Sub(now))
	}

	norm := domain.MulDiv(shares, p.TotalStaked, p.TotalShares)
	amount := denormalize(norm, p.Decimals)
	if !amount.IsPositive() {
		return domain.Zero, domain.ErrZeroAmount("withdrawal")
	}
	if available := v.ledger.AvailableBalance(ctx, token); amount.GreaterThan(available) {
		return domain.Zero, domain.ErrInsufficientFunds(fmt.Sprintf("withdrawal %s exceeds bankroll available %s", amount, available))
	}

	v.accrue(p)
	v.harvest(p, s)
	prev := *s
	prevShares, prevStaked := p.TotalShares, p.TotalStaked
	s.Shares = s.Shares.Sub(shares)
	s.RewardDebt = domain.MulDiv(s.Shares, p.AccRewardPerShare, accPrecision)
	p.TotalShares = p.TotalShares.Sub(shares)
	p.TotalStaked = domain.SubFloor(p.TotalStaked, norm)
	if p.TotalShares.IsZero() {
		p.TotalStaked = domain.Zero
	}

	if err := v.ledger.WithdrawBankroll(ctx, v.cfg.Address, lp, token, amount); err != nil {
		*s = prev
		p.TotalShares, p.TotalStaked = prevShares, prevStaked
		return domain.Zero, fmt.Errorf("withdraw from bankroll: %w", err)
	}

	v.emit(ctx, domain.NewVaultEvent(domain.EventVaultWithdraw, token, lp, map[string]interface{}{
		"amount": amount,
		"shares": shares,
	}, now))
	v.logger.Info("vault withdrawal", "lp", lp, "token", token, "amount", amount, "shares", shares)
	return amount, nil
}

// bankrollActive asks the registry whether the ledger is live. A failed
// lookup is logged and counts as inactive.
func (v *Vault) bankrollActive(ctx context.Context) bool {
	if v.registry == nil {
		return true
	}
	active, err := v.registry.IsActiveBankroll(ctx, v.ledger.Address())
	if err != nil {
		v.logger.Warn("registry lookup failed, treating bankroll as inactive", "bankroll", v.ledger.Address(), "error", err)
		return false
	}
	return active
}

func (v *Vault) stakeOf(p *pool, lp domain.Address) *domain.UserStake {
	s, ok := p.stakes[lp]
	if !ok {
		s = &domain.UserStake{Shares: domain.Zero, RewardDebt: domain.Zero, PendingRewards: domain.Zero}
		p.stakes[lp] = s
	}
	return s
}

// pull moves amount from lp into the vault's account.
func (v *Vault) pull(ctx context.Context, token, lp domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		if err := v.book.SendNative(ctx, lp, v.cfg.Address, amount); err != nil {
			return fmt.Errorf("receive native deposit: %w", err)
		}
		return nil
	}
	if err := v.book.TransferFrom(ctx, token, v.cfg.Address, lp, v.cfg.Address, amount); err != nil {
		return fmt.Errorf("pull token deposit: %w", err)
	}
	return nil
}

// send pays amount out of the vault's own account.
func (v *Vault) send(ctx context.Context, token, to domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		_, err := v.book.PayNative(ctx, v.cfg.Address, to, amount)
		return err
	}
	if err := v.book.Transfer(ctx, token, v.cfg.Address, to, amount); err != nil {
		return domain.ErrExternalCall(fmt.Sprintf("token transfer to %s failed", to), err)
	}
	return nil
}

// refund returns a pulled deposit whose funding failed.
func (v *Vault) refund(ctx context.Context, token, lp domain.Address, amount domain.Amount) {
	if !token.IsNative() {
		if err := v.book.Approve(token, v.cfg.Address, v.ledger.Address(), domain.Zero); err != nil {
			v.logger.Error("reset bankroll allowance", "token", token, "error", err)
		}
	}
	if err := v.send(ctx, token, lp, amount); err != nil {
		v.logger.Error("return failed deposit", "lp", lp, "token", token, "amount", amount, "error", err)
	}
}
