package vault

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	ledgerAddr   domain.Address = "0x00000000000000000000000000000000000000b0"
	vaultAddr    domain.Address = "0x00000000000000000000000000000000000000b1"
	ownerAddr    domain.Address = "0x00000000000000000000000000000000000000a0"
	treasuryAddr domain.Address = "0x00000000000000000000000000000000000000a1"
	wrappedAddr  domain.Address = "0x00000000000000000000000000000000000000c0"
	usdcAddr     domain.Address = "0x00000000000000000000000000000000000000c6"
	aliceAddr    domain.Address = "0x00000000000000000000000000000000000000e2"
	bobAddr      domain.Address = "0x00000000000000000000000000000000000000e3"
	strangerAddr domain.Address = "0x00000000000000000000000000000000000000ff"
)

const day = 24 * time.Hour

type testEnv struct {
	ctx      context.Context
	vault    *Vault
	bankroll *ledger.Bankroll
	book     *asset.Book
	clock    *chain.ManualClock
	outbox   *repository.MemoryOutbox
}

func testVaultConfig() Config {
	return Config{
		Address:              vaultAddr,
		Owner:                ownerAddr,
		FeeRecipient:         treasuryAddr,
		PerformanceFeeBps:    1000,
		MaxPerformanceFeeBps: 2000,
		EpochRate:            7 * day,
		ClaimRate:            14 * day,
		ClaimWindow:          2 * day,
		LockPeriod:           7 * day,
		MaxWindowSearch:      16,
	}
}

type stubRegistry struct {
	active bool
	err    error
}

func (r stubRegistry) IsActiveBankroll(context.Context, domain.Address) (bool, error) {
	return r.active, r.err
}

// newTestEnv deploys a ledger charging feeBps on deposits with a vault in
// front of it. A nil registry means always active.
func newTestEnv(t *testing.T, feeBps int64, registry Registry) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := asset.NewBook(wrappedAddr, logger)
	require.NoError(t, book.RegisterToken(asset.Token{Address: usdcAddr, Symbol: "USDC", Decimals: 6}))

	clock := chain.NewManualClock(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	outbox := repository.NewMemoryOutbox()

	bankroll, err := ledger.NewBankroll(ledger.Config{
		Address:            ledgerAddr,
		Owner:              ownerAddr,
		Treasury:           treasuryAddr,
		ProtocolFeeBps:     feeBps,
		TreasuryShareBps:   5000,
		MaxCreatorShareBps: 1000,
		MinRewardClaim:     domain.Zero,
	}, book, clock, outbox, logger)
	require.NoError(t, err)
	require.NoError(t, bankroll.SetVault(ctx, ownerAddr, vaultAddr))

	v, err := New(testVaultConfig(), bankroll, registry, book, clock, outbox, logger)
	require.NoError(t, err)

	return &testEnv{ctx: ctx, vault: v, bankroll: bankroll, book: book, clock: clock, outbox: outbox}
}

func eth(n int64) domain.Amount { return domain.Units(n, 18) }

func (e *testEnv) addNativePool(t *testing.T, rate domain.Amount) {
	t.Helper()
	_, err := e.vault.AddPool(e.ctx, ownerAddr, domain.NativeToken, rate)
	require.NoError(t, err)
}

// depositNative credits lp with amount and stakes all of it.
func (e *testEnv) depositNative(t *testing.T, lp domain.Address, amount domain.Amount) domain.UserStake {
	t.Helper()
	require.NoError(t, e.book.Credit(domain.NativeToken, lp, amount))
	s, err := e.vault.Deposit(e.ctx, lp, domain.NativeToken, amount)
	require.NoError(t, err)
	return s
}

func (e *testEnv) nativeBalance(addr domain.Address) domain.Amount {
	return e.book.BalanceOf(domain.NativeToken, addr)
}

// openWindow moves the clock to the first withdrawal window.
func (e *testEnv) openWindow() {
	e.clock.Set(e.vault.DeployedAt().Add(14 * day))
}
