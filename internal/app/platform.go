package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/attaboy/bankroll/internal/oracle"
	"github.com/attaboy/bankroll/internal/randomness"
	"github.com/attaboy/bankroll/internal/settlement"
	"github.com/attaboy/bankroll/internal/vault"
)

// Platform is the assembled in-process deployment: one custody book, the
// shared bankroll, the liquidity vault, the randomness gateway and the games.
type Platform struct {
	Book        *asset.Book
	Clock       chain.Clock
	Bankroll    *ledger.Bankroll
	Registry    *ledger.Registry
	Vault       *vault.Vault
	Coordinator *randomness.Coordinator
	Games       []*settlement.Service
}

// BuildPlatform wires every component from cfg. Events from all of them go
// to sink.
func BuildPlatform(ctx context.Context, cfg *infra.Config, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) (*Platform, error) {
	book := asset.NewBook(cfg.WrappedNative, logger.With("component", "book"))
	if err := book.RegisterToken(asset.Token{Address: cfg.RewardToken, Symbol: "PLAY", Decimals: asset.NativeDecimals}); err != nil {
		return nil, fmt.Errorf("register reward token: %w", err)
	}
	if err := book.SetMinter(cfg.RewardToken, cfg.LedgerAddress, true); err != nil {
		return nil, fmt.Errorf("grant reward minter: %w", err)
	}
	tokens, err := cfg.TokenList()
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if err := book.RegisterToken(asset.Token{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}); err != nil {
			return nil, fmt.Errorf("register token %s: %w", t.Symbol, err)
		}
	}

	bankroll, err := ledger.NewBankroll(ledger.Config{
		Address:            cfg.LedgerAddress,
		Owner:              cfg.OwnerAddress,
		Treasury:           cfg.TreasuryAddress,
		Registry:           cfg.RegistryAddress,
		RewardToken:        cfg.RewardToken,
		ProtocolFeeBps:     cfg.ProtocolFeeBps,
		TreasuryShareBps:   cfg.TreasuryShareBps,
		MaxCreatorShareBps: cfg.MaxCreatorShareBps,
		RewardBps:          cfg.RewardBps,
		MinRewardClaim:     cfg.MinRewardClaim,
	}, book, clock, sink, logger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("create bankroll: %w", err)
	}
	registry := ledger.NewRegistry(cfg.LedgerAddress)

	v, err := vault.New(vault.Config{
		Address:              cfg.VaultAddress,
		Owner:                cfg.OwnerAddress,
		FeeRecipient:         cfg.PerformanceFeeReceiver,
		PerformanceFeeBps:    cfg.PerformanceFeeBps,
		MaxPerformanceFeeBps: cfg.MaxPerformanceFeeBps,
		EpochRate:            cfg.EpochRate,
		ClaimRate:            cfg.ClaimRate,
		ClaimWindow:          cfg.ClaimWindow,
		LockPeriod:           cfg.LockPeriod,
		MaxWindowSearch:      cfg.MaxWindowSearch,
	}, bankroll, registry, book, clock, sink, logger.With("component", "vault"))
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	if err := bankroll.SetVault(ctx, cfg.OwnerAddress, v.Address()); err != nil {
		return nil, fmt.Errorf("attach vault: %w", err)
	}
	if _, err := v.AddPool(ctx, cfg.OwnerAddress, domain.NativeToken, cfg.NativeRewardRate); err != nil {
		return nil, fmt.Errorf("add native pool: %w", err)
	}
	for _, t := range tokens {
		if _, err := v.AddPool(ctx, cfg.OwnerAddress, t.Address, domain.Zero); err != nil {
			return nil, fmt.Errorf("add %s pool: %w", t.Symbol, err)
		}
	}

	var source randomness.Source = randomness.CryptoSource{}
	if cfg.RandomOrgAPIKey != "" {
		source = randomness.NewRandomOrgSource(cfg.RandomOrgAPIKey, guard.NewCircuitBreaker(5, 30*time.Second), logger)
	}
	coordinator := randomness.NewCoordinator(cfg.GatewayAddress, source, clock, cfg.RandomnessDelay, sink, logger.With("component", "randomness"))

	coinflip, err := settlement.NewService(settlement.Config{
		Address:           cfg.GameAddress,
		RefundDelayBlocks: cfg.RefundDelayBlocks,
		RiskFractionBps:   cfg.RiskFractionBps,
		MaxBets:           cfg.MaxBets,
		ReservePayout:     cfg.ReservePayout,
		Fees: settlement.FeeSchedule{
			GasPrice:           cfg.GasPrice,
			CallbackGasBase:    cfg.CallbackGasBase,
			CallbackGasPerWord: cfg.CallbackGasPerWord,
			L1DataCost:         cfg.L1DataCost,
			L1MultiplierBps:    cfg.L1MultiplierBps,
			ProviderFee:        cfg.ProviderFee,
		},
	}, settlement.NewCoinFlip(), bankroll, coordinator, book,
		oracle.NewStaticFeed(cfg.OraclePrice, cfg.OracleDecimals), clock, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("create coinflip: %w", err)
	}

	reg := domain.GameRegistration{
		Game:       coinflip.Address(),
		GameID:     coinflip.GameID(),
		Creator:    cfg.GameCreator,
		CreatorBps: cfg.GameCreatorBps,
	}
	if err := bankroll.RegisterGame(ctx, cfg.OwnerAddress, reg); err != nil {
		return nil, fmt.Errorf("register coinflip: %w", err)
	}
	enabled := []domain.Address{domain.NativeToken}
	for _, t := range tokens {
		enabled = append(enabled, t.Address)
	}
	for _, token := range enabled {
		if err := bankroll.SetTokenEnabled(ctx, cfg.OwnerAddress, coinflip.Address(), token, true); err != nil {
			return nil, fmt.Errorf("enable %s for coinflip: %w", token, err)
		}
	}

	logger.Info("platform assembled",
		"ledger", bankroll.Address(),
		"vault", v.Address(),
		"gateway", coordinator.Address(),
		"games", 1,
		"tokens", len(enabled),
	)
	return &Platform{
		Book:        book,
		Clock:       clock,
		Bankroll:    bankroll,
		Registry:    registry,
		Vault:       v,
		Coordinator: coordinator,
		Games:       []*settlement.Service{coinflip},
	}, nil
}
