// Package vault lets liquidity providers stake into the shared bankroll for
// proportional, decimal-normalized shares. Shares earn MasterChef-style
// rewards and can only be redeemed inside periodic withdrawal windows.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
)

// ShareDecimals is the canonical precision of shares and staked amounts.
const ShareDecimals uint8 = 18

// accPrecision scales AccRewardPerShare.
var accPrecision = domain.Pow10(18)

// Ledger is the bankroll surface the vault funds and draws from.
type Ledger interface {
	Address() domain.Address
	AvailableBalance(ctx context.Context, token domain.Address) domain.Amount
	FundBankroll(ctx context.Context, caller, token domain.Address, amount domain.Amount) (domain.FeeSplit, error)
	WithdrawBankroll(ctx context.Context, caller, recipient, token domain.Address, amount domain.Amount) error
}

// Registry reports whether a bankroll is still the live one.
type Registry interface {
	IsActiveBankroll(ctx context.Context, bankroll domain.Address) (bool, error)
}

// Config fixes the vault's accounts, fee and withdrawal schedule.
type Config struct {
	Address              domain.Address
	Owner                domain.Address
	FeeRecipient         domain.Address
	PerformanceFeeBps    int64
	MaxPerformanceFeeBps int64
	EpochRate            time.Duration // epoch length
	ClaimRate            time.Duration // delay from epoch start to window open
	ClaimWindow          time.Duration // window width
	LockPeriod           time.Duration // minimum stake age before withdrawal
	MaxWindowSearch      int           // epochs scanned in each direction
}

// Validate checks the schedule and fee.
func (c Config) Validate() error {
	if err := domain.ValidateAddress(c.Address); err != nil {
		return fmt.Errorf("vault address: %w", err)
	}
	if err := domain.ValidateAddress(c.Owner); err != nil {
		return fmt.Errorf("owner address: %w", err)
	}
	if err := domain.ValidateBps(c.MaxPerformanceFeeBps, domain.BpsDenominator, "max performance fee"); err != nil {
		return err
	}
	if err := domain.ValidateBps(c.PerformanceFeeBps, c.MaxPerformanceFeeBps, "performance fee"); err != nil {
		return err
	}
	if c.PerformanceFeeBps > 0 && c.FeeRecipient.IsZero() {
		return domain.ErrValidation("fee recipient is required for a performance fee")
	}
	if err := validateSchedule(c.EpochRate, c.ClaimRate, c.ClaimWindow); err != nil {
		return err
	}
	if c.LockPeriod < 0 {
		return domain.ErrValidation("lock period must not be negative")
	}
	if c.MaxWindowSearch <= 0 {
		return domain.ErrValidation("window search bound must be positive")
	}
	return nil
}

func validateSchedule(epoch, claimRate, window time.Duration) error {
	if epoch <= 0 {
		return domain.ErrValidation("epoch rate must be positive")
	}
	if claimRate < 0 {
		return domain.ErrValidation("claim rate must not be negative")
	}
	if window <= 0 {
		return domain.ErrValidation("claim window must be positive")
	}
	return nil
}

type pool struct {
	domain.StakingPool
	rewardReserve domain.Amount // reward tokens held by the vault
	stakes        map[domain.Address]*domain.UserStake
}

// Vault is the LP front of one bankroll.
type Vault struct {
	cfg      Config
	ledger   Ledger
	registry Registry
	book     *asset.Book
	clock    chain.Clock
	sink     domain.EventSink
	logger   *slog.Logger
	guard    *guard.Reentrancy

	deployedAt time.Time
	pools      map[domain.Address]*pool
}

// New deploys a vault in front of ledger. Epochs count from now. A nil
// registry treats the ledger as always active.
func New(cfg Config, ledger Ledger, registry Registry, book *asset.Book, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Vault{
		cfg:        cfg,
		ledger:     ledger,
		registry:   registry,
		book:       book,
		clock:      clock,
		sink:       sink,
		logger:     logger,
		guard:      guard.NewReentrancy("vault"),
		deployedAt: clock.Now(),
		pools:      make(map[domain.Address]*pool),
	}, nil
}

// Address is the vault's account.
func (v *Vault) Address() domain.Address { return v.cfg.Address }

// DeployedAt is the start of epoch 0.
func (v *Vault) DeployedAt() time.Time { return v.deployedAt }

// AddPool opens a pool for token paying rewardRate token units per second.
func (v *Vault) AddPool(ctx context.Context, caller, token domain.Address, rewardRate domain.Amount) (domain.StakingPool, error) {
	ctx, release, err := v.guard.Enter(ctx)
	if err != nil {
		return domain.StakingPool{}, err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return domain.StakingPool{}, err
	}
	if _, ok := v.pools[token]; ok {
		return domain.StakingPool{}, domain.ErrConflict(fmt.Sprintf("pool for %s already exists", token))
	}
	if err := domain.ValidateAmount(rewardRate); err != nil {
		return domain.StakingPool{}, err
	}
	decimals, err := v.book.Decimals(token)
	if err != nil {
		return domain.StakingPool{}, err
	}

	p := &pool{
		StakingPool: domain.StakingPool{
			Token:             token,
			Decimals:          decimals,
			TotalShares:       domain.Zero,
			TotalStaked:       domain.Zero,
			AccRewardPerShare: domain.Zero,
			RewardRate:        rewardRate,
			LastRewardTime:    v.clock.Now(),
			Active:            true,
		},
		rewardReserve: domain.Zero,
		stakes:        make(map[domain.Address]*domain.UserStake),
	}
	v.pools[token] = p

	v.emit(ctx, domain.NewVaultEvent(domain.EventVaultPoolAdded, token, "", map[string]interface{}{
		"decimals":    decimals,
		"reward_rate": rewardRate,
	}, v.clock.Now()))
	v.logger.Info("vault pool added", "token", token, "decimals", decimals, "reward_rate", rewardRate)
	return p.StakingPool, nil
}

// SetPoolActive pauses or resumes deposits into a pool.
func (v *Vault) SetPoolActive(ctx context.Context, caller, token domain.Address, active bool) error {
	_, release, err := v.guard.Enter(ctx)
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
	p.Active = active
	return nil
}

// SetRewardRate changes a pool's emission after accruing at the old rate.
func (v *Vault) SetRewardRate(ctx context.Context, caller, token domain.Address, rate domain.Amount) error {
	_, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return err
	}
	if err := domain.ValidateAmount(rate); err != nil {
		return err
	}
	p, err := v.pool(token)
	if err != nil {
		return err
	}
	v.accrue(p)
	p.RewardRate = rate
	return nil
}

// SetSchedule replaces the epoch length, claim delay and window width.
// Windows are recomputed from deployment with the new values.
func (v *Vault) SetSchedule(ctx context.Context, caller domain.Address, epochRate, claimRate, claimWindow time.Duration) error {
	_, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return err
	}
	if err := validateSchedule(epochRate, claimRate, claimWindow); err != nil {
		return err
	}
	v.cfg.EpochRate, v.cfg.ClaimRate, v.cfg.ClaimWindow = epochRate, claimRate, claimWindow
	v.logger.Info("withdraw schedule changed", "epoch_rate", epochRate, "claim_rate", claimRate, "claim_window", claimWindow)
	return nil
}

// SetLockPeriod changes the minimum stake age for withdrawals.
func (v *Vault) SetLockPeriod(ctx context.Context, caller domain.Address, lock time.Duration) error {
	_, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return err
	}
	if lock < 0 {
		return domain.ErrValidation("lock period must not be negative")
	}
	v.cfg.LockPeriod = lock
	return nil
}

// SetPerformanceFee changes the reward claim fee, bounded by the configured maximum.
func (v *Vault) SetPerformanceFee(ctx context.Context, caller domain.Address, bps int64, recipient domain.Address) error {
	_, release, err := v.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireOwner(caller); err != nil {
		return err
	}
	if err := domain.ValidateBps(bps, v.cfg.MaxPerformanceFeeBps, "performance fee"); err != nil {
		return err
	}
	if bps > 0 && recipient.IsZero() {
		return domain.ErrValidation("fee recipient is required for a performance fee")
	}
	v.cfg.PerformanceFeeBps, v.cfg.FeeRecipient = bps, recipient
	return nil
}

// --- Views ---

// Pool returns a pool's state with rewards accrued to now.
func (v *Vault) Pool(ctx context.Context, token domain.Address) (domain.StakingPool, error) {
	defer v.guard.View(ctx)()
	p, err := v.pool(token)
	if err != nil {
		return domain.StakingPool{}, err
	}
	return v.projected(p), nil
}

// Pools lists every pool ordered by token.
func (v *Vault) Pools(ctx context.Context) []domain.StakingPool {
	defer v.guard.View(ctx)()
	out := make([]domain.StakingPool, 0, len(v.pools))
	for _, p := range v.pools {
		out = append(out, v.projected(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Stake returns lp's position in a pool.
func (v *Vault) Stake(ctx context.Context, token, lp domain.Address) (domain.UserStake, error) {
	defer v.guard.View(ctx)()
	p, err := v.pool(token)
	if err != nil {
		return domain.UserStake{}, err
	}
	if s, ok := p.stakes[lp]; ok {
		return *s, nil
	}
	return domain.UserStake{Shares: domain.Zero, RewardDebt: domain.Zero, PendingRewards: domain.Zero}, nil
}

// SharesValue converts shares into token units at the current rate.
func (v *Vault) SharesValue(ctx context.Context, token domain.Address, shares domain.Amount) (domain.Amount, error) {
	defer v.guard.View(ctx)()
	p, err := v.pool(token)
	if err != nil {
		return domain.Zero, err
	}
	return denormalize(domain.MulDiv(shares, p.TotalStaked, p.TotalShares), p.Decimals), nil
}

// RewardReserve is the reward balance the vault holds for a pool.
func (v *Vault) RewardReserve(ctx context.Context, token domain.Address) domain.Amount {
	defer v.guard.View(ctx)()
	if p, ok := v.pools[token]; ok {
		return p.rewardReserve
	}
	return domain.Zero
}

func (v *Vault) pool(token domain.Address) (*pool, error) {
	p, ok := v.pools[token]
	if !ok {
		return nil, domain.ErrNotFound("pool", string(token))
	}
	return p, nil
}

func (v *Vault) requireOwner(caller domain.Address) error {
	if caller != v.cfg.Owner {
		return domain.ErrNotOwner(caller)
	}
	return nil
}

func (v *Vault) emit(ctx context.Context, draft domain.OutboxDraft) {
	if err := v.sink.Emit(ctx, draft); err != nil {
		v.logger.Error("emit vault event failed", "event_type", draft.EventType, "error", err)
	}
}

// normalize scales a token amount to ShareDecimals.
func normalize(amount domain.Amount, decimals uint8) domain.Amount {
	if decimals <= ShareDecimals {
		return amount.Mul(domain.Pow10(ShareDecimals - decimals))
	}
	return domain.Div(amount, domain.Pow10(decimals-ShareDecimals))
}

// denormalize scales a ShareDecimals amount back to token units, flooring.
func denormalize(amount domain.Amount, decimals uint8) domain.Amount {
	if decimals <= ShareDecimals {
		return domain.Div(amount, domain.Pow10(ShareDecimals-decimals))
	}
	return amount.Mul(domain.Pow10(decimals - ShareDecimals))
}
