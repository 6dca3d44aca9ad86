package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// Deposit pulls amount of token from caller into the bankroll and skims the
// protocol fee. Token deposits need a prior allowance for the bankroll;
// native deposits are sent directly. Returns how the amount was split.
func (b *Bankroll) Deposit(ctx context.Context, caller, token domain.Address, amount domain.Amount) (domain.FeeSplit, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.FeeSplit{}, err
	}
	defer release()

	return b.deposit(ctx, caller, token, amount, domain.GameRegistration{})
}

// DepositWager forwards a game's played stake into the bankroll. The game's
// creator share of the fee is accrued for its creator.
func (b *Bankroll) DepositWager(ctx context.Context, game, token domain.Address, amount domain.Amount) (domain.FeeSplit, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.FeeSplit{}, err
	}
	defer release()

	reg, ok := b.games[game]
	if !ok {
		return domain.FeeSplit{}, domain.ErrNotGame(game)
	}
	split, err := b.deposit(ctx, game, token, amount, reg)
	if err != nil {
		return domain.FeeSplit{}, err
	}
	b.emit(ctx, domain.NewTransferEvent(domain.EventWagerTransferred, token, game, amount, b.clock.Now()))
	return split, nil
}

// FundBankroll is the vault's deposit path.
func (b *Bankroll) FundBankroll(ctx context.Context, caller, token domain.Address, amount domain.Amount) (domain.FeeSplit, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.FeeSplit{}, err
	}
	defer release()

	if b.vault.IsZero() || caller != b.vault {
		return domain.FeeSplit{}, domain.ErrForbidden(fmt.Sprintf("%s is not the liquidity vault", caller))
	}
	return b.deposit(ctx, caller, token, amount, domain.GameRegistration{})
}

func (b *Bankroll) deposit(ctx context.Context, from, token domain.Address, amount domain.Amount, reg domain.GameRegistration) (domain.FeeSplit, error) {
	if err := domain.ValidatePositiveAmount(amount, "deposit"); err != nil {
		return domain.FeeSplit{}, err
	}
	if _, err := b.book.Decimals(token); err != nil {
		return domain.FeeSplit{}, err
	}

	if err := b.pull(ctx, token, from, amount); err != nil {
		return domain.FeeSplit{}, err
	}

	split := b.splitFee(amount, reg.CreatorBps)
	if split.CreatorCut.IsPositive() {
		if b.creatorFees[token] == nil {
			b.creatorFees[token] = make(map[domain.Address]domain.Amount)
		}
		b.creatorFees[token][reg.Creator] = amountOf(b.creatorFees[token], reg.Creator).Add(split.CreatorCut)
	}
	if split.Treasury.IsPositive() {
		b.treasuryFees[token] = amountOf(b.treasuryFees, token).Add(split.Treasury)
	}

	b.emit(ctx, domain.NewEvent(domain.AggregateBankroll, string(token), domain.EventDeposit, map[string]interface{}{
		"token": token,
		"from":  from,
		"split": split,
	}, b.clock.Now()))
	b.logger.Debug("bankroll deposit", "token", token, "from", from, "amount", amount, "fee", split.Fee)
	return split, nil
}

func (b *Bankroll) pull(ctx context.Context, token, from domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		if err := b.book.SendNative(ctx, from, b.cfg.Address, amount); err != nil {
			return fmt.Errorf("receive native deposit: %w", err)
		}
		return nil
	}
	if err := b.book.TransferFrom(ctx, token, b.cfg.Address, from, b.cfg.Address, amount); err != nil {
		return fmt.Errorf("pull token deposit: %w", err)
	}
	return nil
}

// splitFee divides the protocol fee: creator share first, then the
// remainder between treasury and reinvestment.
func (b *Bankroll) splitFee(amount domain.Amount, creatorBps int64) domain.FeeSplit {
	if creatorBps > b.cfg.MaxCreatorShareBps {
		creatorBps = b.cfg.MaxCreatorShareBps
	}
	fee := domain.MulBps(amount, b.cfg.ProtocolFeeBps)
	creator := domain.MulBps(fee, creatorBps)
	rest := fee.Sub(creator)
	treasury := domain.MulBps(rest, b.cfg.TreasuryShareBps)
	return domain.FeeSplit{
		Gross:      amount,
		Fee:        fee,
		CreatorCut: creator,
		Treasury:   treasury,
		Reinvested: rest.Sub(treasury),
		Net:        amount.Sub(fee),
	}
}

// QuoteDeposit previews the split a deposit would produce.
func (b *Bankroll) QuoteDeposit(amount domain.Amount, creatorBps int64) domain.FeeSplit {
	return b.splitFee(amount, creatorBps)
}

// WithdrawBankroll pays amount of token out to recipient. Only the vault
// and the owner may withdraw, and never into reserved funds.
func (b *Bankroll) WithdrawBankroll(ctx context.Context, caller, recipient, token domain.Address, amount domain.Amount) error {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if caller != b.cfg.Owner && (b.vault.IsZero() || caller != b.vault) {
		return domain.ErrForbidden(fmt.Sprintf("%s may not withdraw from the bankroll", caller))
	}
	if err := domain.ValidatePositiveAmount(amount, "withdrawal"); err != nil {
		return err
	}
	available := b.availableBalance(token)
	if amount.GreaterThan(available) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("withdrawal %s exceeds available %s", amount, available))
	}

	if _, err := b.send(ctx, token, recipient, amount); err != nil {
		return err
	}
	b.emit(ctx, domain.NewTransferEvent(domain.EventBankrollWithdrawn, token, recipient, amount, b.clock.Now()))
	b.logger.Info("bankroll withdrawal", "token", token, "recipient", recipient, "amount", amount, "caller", caller)
	return nil
}

// SweepFees pays accrued treasury and creator fees for token out of custody.
// Custody must cover every accrual before anything moves. A recipient whose
// transfer still fails keeps its accrual for the next sweep, and the call
// reports what was paid.
func (b *Bankroll) SweepFees(ctx context.Context, caller, token domain.Address) (domain.Amount, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return domain.Zero, err
	}
	defer release()

	if caller != b.cfg.Owner && caller != b.cfg.Treasury {
		return domain.Zero, domain.ErrForbidden(fmt.Sprintf("%s may not sweep fees", caller))
	}
	due := b.unsweptFees(token)
	if custody := b.book.BalanceOf(token, b.cfg.Address); due.GreaterThan(custody) {
		return domain.Zero, domain.ErrInsufficientFunds(fmt.Sprintf("accrued fees %s exceed custody %s", due, custody))
	}

	swept := domain.Zero
	var failed error
	if fee := amountOf(b.treasuryFees, token); fee.IsPositive() {
		if _, err := b.send(ctx, token, b.cfg.Treasury, fee); err != nil {
			b.logger.Warn("treasury fee sweep failed", "token", token, "amount", fee, "error", err)
			failed = err
		} else {
			delete(b.treasuryFees, token)
			swept = swept.Add(fee)
		}
	}
	for creator, fee := range b.creatorFees[token] {
		if !fee.IsPositive() {
			delete(b.creatorFees[token], creator)
			continue
		}
		if _, err := b.send(ctx, token, creator, fee); err != nil {
			b.logger.Warn("creator fee sweep failed", "token", token, "creator", creator, "amount", fee, "error", err)
			failed = err
			continue
		}
		delete(b.creatorFees[token], creator)
		swept = swept.Add(fee)
	}

	if swept.IsZero() && failed != nil {
		return domain.Zero, failed
	}
	if swept.IsPositive() {
		b.emit(ctx, domain.NewTransferEvent(domain.EventFeesSwept, token, b.cfg.Treasury, swept, b.clock.Now()))
	}
	return swept, nil
}

// FeesAccrued returns unswept treasury and creator fees for token.
func (b *Bankroll) FeesAccrued(ctx context.Context, token domain.Address) (treasury domain.Amount, creators map[domain.Address]domain.Amount) {
	defer b.guard.View(ctx)()
	creators = make(map[domain.Address]domain.Amount, len(b.creatorFees[token]))
	for k, v := range b.creatorFees[token] {
		creators[k] = v
	}
	return amountOf(b.treasuryFees, token), creators
}
