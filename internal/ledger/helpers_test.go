package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	ledgerAddr   domain.Address = "0x00000000000000000000000000000000000000b0"
	ownerAddr    domain.Address = "0x00000000000000000000000000000000000000a0"
	treasuryAddr domain.Address = "0x00000000000000000000000000000000000000a1"
	registryAddr domain.Address = "0x00000000000000000000000000000000000000a2"
	vaultAddr    domain.Address = "0x00000000000000000000000000000000000000b1"
	wrappedAddr  domain.Address = "0x00000000000000000000000000000000000000c0"
	rewardAddr   domain.Address = "0x00000000000000000000000000000000000000c1"
	usdcAddr     domain.Address = "0x00000000000000000000000000000000000000c6"
	gameAddr     domain.Address = "0x00000000000000000000000000000000000000d0"
	creatorAddr  domain.Address = "0x00000000000000000000000000000000000000d1"
	playerAddr   domain.Address = "0x00000000000000000000000000000000000000e1"
	lpAddr       domain.Address = "0x00000000000000000000000000000000000000e2"
	strangerAddr domain.Address = "0x00000000000000000000000000000000000000ff"
)

type testEnv struct {
	ctx      context.Context
	bankroll *Bankroll
	book     *asset.Book
	clock    *chain.ManualClock
	outbox   *repository.MemoryOutbox
}

func testConfig() Config {
	return Config{
		Address:            ledgerAddr,
		Owner:              ownerAddr,
		Treasury:           treasuryAddr,
		Registry:           registryAddr,
		RewardToken:        rewardAddr,
		ProtocolFeeBps:     200,
		TreasuryShareBps:   5000,
		MaxCreatorShareBps: 1000,
		RewardBps:          10,
		MinRewardClaim:     domain.NewAmount(1000),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := asset.NewBook(wrappedAddr, logger)
	require.NoError(t, book.RegisterToken(asset.Token{Address: usdcAddr, Symbol: "USDC", Decimals: 6}))
	require.NoError(t, book.RegisterToken(asset.Token{Address: rewardAddr, Symbol: "PLAY", Decimals: 18}))
	require.NoError(t, book.SetMinter(rewardAddr, ledgerAddr, true))

	clock := chain.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	outbox := repository.NewMemoryOutbox()
	b, err := NewBankroll(testConfig(), book, clock, outbox, logger)
	require.NoError(t, err)

	return &testEnv{ctx: context.Background(), bankroll: b, book: book, clock: clock, outbox: outbox}
}

// registerGame allowlists gameAddr for native and USDC.
func (e *testEnv) registerGame(t *testing.T, creatorBps int64) {
	t.Helper()
	reg := domain.GameRegistration{Game: gameAddr, GameID: "coinflip", CreatorBps: creatorBps}
	if creatorBps > 0 {
		reg.Creator = creatorAddr
	}
	require.NoError(t, e.bankroll.RegisterGame(e.ctx, ownerAddr, reg))
	require.NoError(t, e.bankroll.SetTokenEnabled(e.ctx, ownerAddr, gameAddr, domain.NativeToken, true))
	require.NoError(t, e.bankroll.SetTokenEnabled(e.ctx, ownerAddr, gameAddr, usdcAddr, true))
}

// fund deposits amount of native from lpAddr.
func (e *testEnv) fund(t *testing.T, amount int64) domain.FeeSplit {
	t.Helper()
	require.NoError(t, e.book.Credit(domain.NativeToken, lpAddr, domain.NewAmount(amount)))
	split, err := e.bankroll.Deposit(e.ctx, lpAddr, domain.NativeToken, domain.NewAmount(amount))
	require.NoError(t, err)
	return split
}

func amt(v int64) domain.Amount { return domain.NewAmount(v) }

type rejectingReceiver struct{}

func (rejectingReceiver) ReceiveNative(context.Context, domain.Address, domain.Amount) error {
	return errNoPlainTransfers
}

var errNoPlainTransfers = domain.ErrValidation("contract rejects plain transfers")

// reenteringReceiver tries to reserve funds from inside a payout.
type reenteringReceiver struct {
	bankroll *Bankroll
	err      error
}

func (r *reenteringReceiver) ReceiveNative(ctx context.Context, _ domain.Address, amount domain.Amount) error {
	r.err = r.bankroll.ReserveFunds(ctx, gameAddr, domain.NativeToken, amount)
	return r.err
}
