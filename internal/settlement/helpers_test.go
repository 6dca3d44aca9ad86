package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/attaboy/bankroll/internal/oracle"
	"github.com/attaboy/bankroll/internal/randomness"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	ledgerAddr   domain.Address = "0x00000000000000000000000000000000000000b0"
	ownerAddr    domain.Address = "0x00000000000000000000000000000000000000a0"
	treasuryAddr domain.Address = "0x00000000000000000000000000000000000000a1"
	gatewayAddr  domain.Address = "0x00000000000000000000000000000000000000b2"
	wrappedAddr  domain.Address = "0x00000000000000000000000000000000000000c0"
	rewardAddr   domain.Address = "0x00000000000000000000000000000000000000c1"
	usdcAddr     domain.Address = "0x00000000000000000000000000000000000000c6"
	gameAddr     domain.Address = "0x00000000000000000000000000000000000000d0"
	playerAddr   domain.Address = "0x00000000000000000000000000000000000000e1"
	lpAddr       domain.Address = "0x00000000000000000000000000000000000000e2"
	strangerAddr domain.Address = "0x00000000000000000000000000000000000000ff"
)

const (
	heads domain.Word = 0
	tails domain.Word = 1
)

// fakeGateway hands out sequential ids and delivers on demand.
type fakeGateway struct {
	mu        sync.Mutex
	n         int
	consumers map[domain.RequestID]randomness.Consumer
	err       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{consumers: make(map[domain.RequestID]randomness.Consumer)}
}

func (g *fakeGateway) RequestRandomWords(_ context.Context, consumer randomness.Consumer, _ uint32) (domain.RequestID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.n++
	id := domain.RequestID(fmt.Sprintf("req-%d", g.n))
	g.consumers[id] = consumer
	return id, nil
}

func (g *fakeGateway) Address() domain.Address { return gatewayAddr }

func (g *fakeGateway) deliver(ctx context.Context, id domain.RequestID, words ...domain.Word) error {
	g.mu.Lock()
	c, ok := g.consumers[id]
	g.mu.Unlock()
	if !ok {
		return errors.New("unknown id")
	}
	return c.FulfillRandomWords(ctx, gatewayAddr, id, words)
}

type testEnv struct {
	ctx      context.Context
	svc      *Service
	bankroll *ledger.Bankroll
	book     *asset.Book
	clock    *chain.ManualClock
	gateway  *fakeGateway
	outbox   *repository.MemoryOutbox
}

func testFees() FeeSchedule {
	return FeeSchedule{
		GasPrice:           domain.NewAmount(1),
		CallbackGasBase:    100,
		CallbackGasPerWord: 10,
		L1DataCost:         domain.Zero,
		L1MultiplierBps:    domain.BpsDenominator,
		ProviderFee:        domain.Zero,
	}
}

func testServiceConfig() Config {
	return Config{
		Address:           gameAddr,
		RefundDelayBlocks: 200,
		RiskFractionBps:   112,
		MaxBets:           10,
		ReservePayout:     true,
		Fees:              testFees(),
	}
}

// newTestEnv builds a ledger funded with 1,000,000 native and USDC (990,000
// after the treasury's fee share) and a coinflip service on top.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := asset.NewBook(wrappedAddr, logger)
	require.NoError(t, book.RegisterToken(asset.Token{Address: usdcAddr, Symbol: "USDC", Decimals: 6}))
	require.NoError(t, book.RegisterToken(asset.Token{Address: rewardAddr, Symbol: "PLAY", Decimals: 18}))
	require.NoError(t, book.SetMinter(rewardAddr, ledgerAddr, true))

	clock := chain.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	outbox := repository.NewMemoryOutbox()

	bankroll, err := ledger.NewBankroll(ledger.Config{
		Address:            ledgerAddr,
		Owner:              ownerAddr,
		Treasury:           treasuryAddr,
		RewardToken:        rewardAddr,
		ProtocolFeeBps:     200,
		TreasuryShareBps:   5000,
		MaxCreatorShareBps: 1000,
		RewardBps:          10,
		MinRewardClaim:     domain.Zero,
	}, book, clock, outbox, logger)
	require.NoError(t, err)

	require.NoError(t, bankroll.RegisterGame(ctx, ownerAddr, domain.GameRegistration{Game: gameAddr, GameID: "coinflip"}))
	require.NoError(t, bankroll.SetTokenEnabled(ctx, ownerAddr, gameAddr, domain.NativeToken, true))
	require.NoError(t, bankroll.SetTokenEnabled(ctx, ownerAddr, gameAddr, usdcAddr, true))

	require.NoError(t, book.Credit(domain.NativeToken, lpAddr, domain.NewAmount(1_000_000)))
	_, err = bankroll.Deposit(ctx, lpAddr, domain.NativeToken, domain.NewAmount(1_000_000))
	require.NoError(t, err)
	require.NoError(t, book.Credit(usdcAddr, lpAddr, domain.NewAmount(1_000_000)))
	require.NoError(t, book.Approve(usdcAddr, lpAddr, ledgerAddr, domain.NewAmount(1_000_000)))
	_, err = bankroll.Deposit(ctx, lpAddr, usdcAddr, domain.NewAmount(1_000_000))
	require.NoError(t, err)

	require.NoError(t, book.Credit(domain.NativeToken, playerAddr, domain.NewAmount(100_000)))

	gateway := newFakeGateway()
	svc, err := NewService(cfg, NewCoinFlip(), bankroll, gateway, book, oracle.NewStaticFeed(domain.NewAmount(1), 0), clock, outbox, logger)
	require.NoError(t, err)

	return &testEnv{ctx: ctx, svc: svc, bankroll: bankroll, book: book, clock: clock, gateway: gateway, outbox: outbox}
}

func amt(v int64) domain.Amount { return domain.NewAmount(v) }

// nativePlay builds a native play sending exactly stake plus fee.
func nativePlay(wager int64, count uint32) PlayRequest {
	fee := int64(100 + 10*count)
	return PlayRequest{
		Player: playerAddr,
		Token:  domain.NativeToken,
		Wager:  amt(wager),
		Value:  amt(wager*int64(count) + fee),
		Bet:    domain.BetConfig{Count: count, StopGain: domain.Zero, StopLoss: domain.Zero},
	}
}

func (e *testEnv) nativeBalance(addr domain.Address) domain.Amount {
	return e.book.BalanceOf(domain.NativeToken, addr)
}

type rejectingReceiver struct{}

func (rejectingReceiver) ReceiveNative(context.Context, domain.Address, domain.Amount) error {
	return errors.New("contract rejects plain transfers")
}
