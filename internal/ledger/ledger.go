// Package ledger is the shared bankroll: custody and accounting of pooled
// funds per token, shared by every game service and the liquidity vault.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
)

// Config fixes the bankroll's identity, privileged accounts and fee schedule.
type Config struct {
	Address            domain.Address // custody account in the asset book
	Owner              domain.Address
	Treasury           domain.Address
	Registry           domain.Address // migrator allowed to use Execute
	RewardToken        domain.Address // minted on ClaimRewards
	ProtocolFeeBps     int64
	TreasuryShareBps   int64
	MaxCreatorShareBps int64
	RewardBps          int64
	MinRewardClaim     domain.Amount
}

// Validate checks the fee schedule.
func (c Config) Validate() error {
	if err := domain.ValidateAddress(c.Address); err != nil {
		return fmt.Errorf("ledger address: %w", err)
	}
	if err := domain.ValidateAddress(c.Owner); err != nil {
		return fmt.Errorf("owner address: %w", err)
	}
	if err := domain.ValidateBps(c.ProtocolFeeBps, domain.BpsDenominator, "protocol fee"); err != nil {
		return err
	}
	if err := domain.ValidateBps(c.TreasuryShareBps, domain.BpsDenominator, "treasury share"); err != nil {
		return err
	}
	if err := domain.ValidateBps(c.MaxCreatorShareBps, domain.BpsDenominator, "max creator share"); err != nil {
		return err
	}
	return domain.ValidateBps(c.RewardBps, domain.BpsDenominator, "play reward")
}

// Bankroll owns all pooled funds. Every mutating call runs to completion
// under the reentrancy guard; views see a consistent state.
type Bankroll struct {
	cfg    Config
	book   *asset.Book
	clock  chain.Clock
	sink   domain.EventSink
	logger *slog.Logger
	guard  *guard.Reentrancy

	vault        domain.Address
	games        map[domain.Address]domain.GameRegistration
	enabled      map[domain.Address]map[domain.Address]bool
	reserved     map[domain.Address]domain.Amount
	reservedBy   map[domain.Address]map[domain.Address]domain.Amount // game → token → held
	treasuryFees map[domain.Address]domain.Amount
	creatorFees  map[domain.Address]map[domain.Address]domain.Amount
	suspensions  map[domain.Address]domain.Suspension
	rewards      map[domain.Address]domain.Amount
}

// NewBankroll creates a bankroll holding custody at cfg.Address.
func NewBankroll(cfg Config, book *asset.Book, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) (*Bankroll, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinRewardClaim.IsNegative() {
		return nil, domain.ErrValidation("minimum reward claim must not be negative")
	}
	return &Bankroll{
		cfg:          cfg,
		book:         book,
		clock:        clock,
		sink:         sink,
		logger:       logger,
		guard:        guard.NewReentrancy("ledger"),
		games:        make(map[domain.Address]domain.GameRegistration),
		enabled:      make(map[domain.Address]map[domain.Address]bool),
		reserved:     make(map[domain.Address]domain.Amount),
		reservedBy:   make(map[domain.Address]map[domain.Address]domain.Amount),
		treasuryFees: make(map[domain.Address]domain.Amount),
		creatorFees:  make(map[domain.Address]map[domain.Address]domain.Amount),
		suspensions:  make(map[domain.Address]domain.Suspension),
		rewards:      make(map[domain.Address]domain.Amount),
	}, nil
}

// Address is the bankroll's custody account.
func (b *Bankroll) Address() domain.Address { return b.cfg.Address }

// Owner is the administrative account.
func (b *Bankroll) Owner() domain.Address { return b.cfg.Owner }

// --- Balance views ---

// TotalBalance is the custody balance of token less fees not yet swept.
func (b *Bankroll) TotalBalance(ctx context.Context, token domain.Address) domain.Amount {
	defer b.guard.View(ctx)()
	return b.totalBalance(token)
}

// AvailableBalance is max(0, total − reserved).
func (b *Bankroll) AvailableBalance(ctx context.Context, token domain.Address) domain.Amount {
	defer b.guard.View(ctx)()
	return b.availableBalance(token)
}

// ReservedFunds returns the amount of token earmarked for in-flight wagers.
func (b *Bankroll) ReservedFunds(ctx context.Context, token domain.Address) domain.Amount {
	defer b.guard.View(ctx)()
	return amountOf(b.reserved, token)
}

// ReservedBy returns what game currently holds reserved in token.
func (b *Bankroll) ReservedBy(ctx context.Context, game, token domain.Address) domain.Amount {
	defer b.guard.View(ctx)()
	return amountOf(b.reservedBy[game], token)
}

// PoolState returns the accounting view for one token.
func (b *Bankroll) PoolState(ctx context.Context, token domain.Address) domain.PoolState {
	defer b.guard.View(ctx)()
	return b.poolState(token)
}

func (b *Bankroll) poolState(token domain.Address) domain.PoolState {
	return domain.PoolState{
		Token:        token,
		TotalBalance: b.totalBalance(token),
		Reserved:     amountOf(b.reserved, token),
		Available:    b.availableBalance(token),
		FeesAccrued:  b.unsweptFees(token),
	}
}

func (b *Bankroll) totalBalance(token domain.Address) domain.Amount {
	return domain.SubFloor(b.book.BalanceOf(token, b.cfg.Address), b.unsweptFees(token))
}

func (b *Bankroll) availableBalance(token domain.Address) domain.Amount {
	return domain.SubFloor(b.totalBalance(token), amountOf(b.reserved, token))
}

func (b *Bankroll) unsweptFees(token domain.Address) domain.Amount {
	total := amountOf(b.treasuryFees, token)
	for _, v := range b.creatorFees[token] {
		total = total.Add(v)
	}
	return total
}

// --- Reservation ---

// ReserveFunds earmarks amount of token against an in-flight wager.
func (b *Bankroll) ReserveFunds(ctx context.Context, game, token domain.Address, amount domain.Amount) error {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := b.requireGame(game); err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(amount, "reserve amount"); err != nil {
		return err
	}
	available := b.availableBalance(token)
	if amount.GreaterThan(available) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("reserve %s exceeds available %s", amount, available))
	}

	b.reserved[token] = amountOf(b.reserved, token).Add(amount)
	if b.reservedBy[game] == nil {
		b.reservedBy[game] = make(map[domain.Address]domain.Amount)
	}
	b.reservedBy[game][token] = amountOf(b.reservedBy[game], token).Add(amount)
	b.emit(ctx, domain.NewTransferEvent(domain.EventFundsReserved, token, game, amount, b.clock.Now()))
	return nil
}

// ReleaseFunds returns a reservation to the available pool. A game may only
// release what it reserved itself, and keeps that right after removal so
// its in-flight wagers can still be unwound.
func (b *Bankroll) ReleaseFunds(ctx context.Context, game, token domain.Address, amount domain.Amount) error {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	held := amountOf(b.reservedBy[game], token)
	if _, ok := b.games[game]; !ok && !held.IsPositive() {
		return domain.ErrNotGame(game)
	}
	if err := domain.ValidatePositiveAmount(amount, "release amount"); err != nil {
		return err
	}
	if amount.GreaterThan(held) {
		return domain.ErrInsufficientReserved(fmt.Sprintf("release %s exceeds reserved %s", amount, held))
	}

	b.reserved[token] = amountOf(b.reserved, token).Sub(amount)
	if remaining := held.Sub(amount); remaining.IsZero() {
		delete(b.reservedBy[game], token)
	} else {
		b.reservedBy[game][token] = remaining
	}
	b.emit(ctx, domain.NewTransferEvent(domain.EventFundsReleased, token, game, amount, b.clock.Now()))
	return nil
}

// --- Payout ---

// TransferPayout pays a player's winnings out of the bankroll. A native
// payout the player refuses is delivered as wrapped native instead. It
// reports whether that fallback was used.
func (b *Bankroll) TransferPayout(ctx context.Context, game, player domain.Address, amount domain.Amount, token domain.Address) (bool, error) {
	ctx, release, err := b.guard.Enter(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	if err := b.requireGame(game); err != nil {
		return false, err
	}
	if err := domain.ValidatePositiveAmount(amount, "payout"); err != nil {
		return false, err
	}
	available := b.availableBalance(token)
	if amount.GreaterThan(available) {
		return false, domain.ErrInsufficientFunds(fmt.Sprintf("payout %s exceeds available %s", amount, available))
	}

	wrapped, err := b.send(ctx, token, player, amount)
	if err != nil {
		return false, err
	}
	if wrapped {
		b.logger.Warn("payout delivered as wrapped native", "game", game, "player", player, "amount", amount)
	}
	b.emit(ctx, domain.NewTransferEvent(domain.EventPayoutTransferred, token, player, amount, b.clock.Now()))
	return wrapped, nil
}

// send moves custody out of the bankroll, falling back to wrapped native.
func (b *Bankroll) send(ctx context.Context, token, to domain.Address, amount domain.Amount) (bool, error) {
	if token.IsNative() {
		return b.book.PayNative(ctx, b.cfg.Address, to, amount)
	}
	if err := b.book.Transfer(ctx, token, b.cfg.Address, to, amount); err != nil {
		return false, domain.ErrExternalCall(fmt.Sprintf("token transfer to %s failed", to), err)
	}
	return false, nil
}

func (b *Bankroll) requireGame(caller domain.Address) error {
	if _, ok := b.games[caller]; !ok {
		return domain.ErrNotGame(caller)
	}
	return nil
}

func (b *Bankroll) requireOwner(caller domain.Address) error {
	if caller != b.cfg.Owner {
		return domain.ErrNotOwner(caller)
	}
	return nil
}

func (b *Bankroll) emit(ctx context.Context, draft domain.OutboxDraft) {
	if err := b.sink.Emit(ctx, draft); err != nil {
		b.logger.Error("emit ledger event failed", "event_type", draft.EventType, "error", err)
	}
}

func amountOf(m map[domain.Address]domain.Amount, key domain.Address) domain.Amount {
	if v, ok := m[key]; ok {
		return v
	}
	return domain.Zero
}
