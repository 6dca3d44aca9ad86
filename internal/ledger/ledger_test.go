package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Construction ---

func TestNewBankroll_RejectsBadFees(t *testing.T) {
	cfg := testConfig()
	cfg.ProtocolFeeBps = 10_001
	_, err := NewBankroll(cfg, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ClassValidation, domain.ClassOf(err))

	cfg = testConfig()
	cfg.Owner = "not-an-address"
	_, err = NewBankroll(cfg, nil, nil, nil, nil)
	require.Error(t, err)
}

// --- Deposit & fee split ---

func TestDeposit_ScenarioA(t *testing.T) {
	e := newTestEnv(t)

	split := e.fund(t, 10_000)

	assert.True(t, split.Fee.Equal(amt(200)), "fee")
	assert.True(t, split.CreatorCut.IsZero(), "creator")
	assert.True(t, split.Treasury.Equal(amt(100)), "treasury")
	assert.True(t, split.Reinvested.Equal(amt(100)), "reinvested")
	assert.True(t, split.Net.Equal(amt(9_800)), "net")

	assert.True(t, e.bankroll.TotalBalance(e.ctx, domain.NativeToken).Equal(amt(9_900)))
	assert.True(t, e.bankroll.AvailableBalance(e.ctx, domain.NativeToken).Equal(amt(9_900)))

	swept, err := e.bankroll.SweepFees(e.ctx, treasuryAddr, domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, swept.Equal(amt(100)))
	assert.True(t, e.book.BalanceOf(domain.NativeToken, treasuryAddr).Equal(amt(100)))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, domain.NativeToken).Equal(amt(9_900)), "sweeping does not touch the pool")
}

func TestDeposit_TokenNeedsAllowance(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.book.Credit(usdcAddr, lpAddr, amt(5_000)))

	_, err := e.bankroll.Deposit(e.ctx, lpAddr, usdcAddr, amt(5_000))
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_FUNDS", domain.CodeOf(err))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, usdcAddr).IsZero())

	require.NoError(t, e.book.Approve(usdcAddr, lpAddr, ledgerAddr, amt(5_000)))
	split, err := e.bankroll.Deposit(e.ctx, lpAddr, usdcAddr, amt(5_000))
	require.NoError(t, err)
	assert.True(t, split.Fee.Equal(amt(100)))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, usdcAddr).Equal(amt(4_950)))
}

func TestDeposit_Rejections(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.bankroll.Deposit(e.ctx, lpAddr, domain.NativeToken, domain.Zero)
	require.Error(t, err)
	assert.Equal(t, "ZERO_AMOUNT", domain.CodeOf(err))

	_, err = e.bankroll.Deposit(e.ctx, lpAddr, "0x0000000000000000000000000000000000000999", amt(1))
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED_TOKEN", domain.CodeOf(err))

	_, err = e.bankroll.Deposit(e.ctx, lpAddr, domain.NativeToken, amt(1))
	require.Error(t, err, "lp holds no native")
	assert.Empty(t, e.outbox.ByType(domain.EventDeposit))
}

func TestDepositWager_CreatorShare(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 1000)
	require.NoError(t, e.book.Credit(domain.NativeToken, gameAddr, amt(100_000)))

	split, err := e.bankroll.DepositWager(e.ctx, gameAddr, domain.NativeToken, amt(100_000))
	require.NoError(t, err)

	// fee 2,000; creator 10% = 200; rest 1,800 split 900/900.
	assert.True(t, split.Fee.Equal(amt(2_000)))
	assert.True(t, split.CreatorCut.Equal(amt(200)))
	assert.True(t, split.Treasury.Equal(amt(900)))
	assert.True(t, split.Reinvested.Equal(amt(900)))

	treasury, creators := e.bankroll.FeesAccrued(e.ctx, domain.NativeToken)
	assert.True(t, treasury.Equal(amt(900)))
	assert.True(t, creators[creatorAddr].Equal(amt(200)))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, domain.NativeToken).Equal(amt(98_900)))
	assert.Len(t, e.outbox.ByType(domain.EventWagerTransferred), 1)

	_, err = e.bankroll.SweepFees(e.ctx, ownerAddr, domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, e.book.BalanceOf(domain.NativeToken, creatorAddr).Equal(amt(200)))
}

func TestSweepFees_EveryRecipientPaid(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 1000)
	e.book.SetReceiver(creatorAddr, rejectingReceiver{})
	require.NoError(t, e.book.Credit(domain.NativeToken, gameAddr, amt(100_000)))
	_, err := e.bankroll.DepositWager(e.ctx, gameAddr, domain.NativeToken, amt(100_000))
	require.NoError(t, err)

	swept, err := e.bankroll.SweepFees(e.ctx, treasuryAddr, domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, swept.Equal(amt(1_100)))
	assert.True(t, e.book.BalanceOf(domain.NativeToken, treasuryAddr).Equal(amt(900)))
	assert.True(t, e.book.BalanceOf(wrappedAddr, creatorAddr).Equal(amt(200)), "rejected native arrives wrapped")

	treasury, creators := e.bankroll.FeesAccrued(e.ctx, domain.NativeToken)
	assert.True(t, treasury.IsZero())
	assert.Empty(t, creators)
	assert.Len(t, e.outbox.ByType(domain.EventFeesSwept), 1)
	assert.True(t, e.bankroll.Audit(e.ctx).AllPassed)

	swept, err = e.bankroll.SweepFees(e.ctx, treasuryAddr, domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, swept.IsZero(), "nothing left to sweep")
	assert.Len(t, e.outbox.ByType(domain.EventFeesSwept), 1)
}

func TestDepositWager_UnknownGame(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.bankroll.DepositWager(e.ctx, strangerAddr, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, domain.ClassAuthorization, domain.ClassOf(err))
}

func TestQuoteDeposit_CapsCreatorShare(t *testing.T) {
	e := newTestEnv(t)
	split := e.bankroll.QuoteDeposit(amt(100_000), 5000)
	assert.True(t, split.CreatorCut.Equal(amt(200)), "capped at the 10%% maximum")
}

// --- Reservation ---

func TestReserveRelease_Bounds(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000) // pool 9,900

	err := e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(9_901))
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_FUNDS", domain.CodeOf(err))

	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(9_900)))
	assert.True(t, e.bankroll.AvailableBalance(e.ctx, domain.NativeToken).IsZero())

	err = e.bankroll.ReleaseFunds(e.ctx, gameAddr, domain.NativeToken, amt(9_901))
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_RESERVED", domain.CodeOf(err))

	require.NoError(t, e.bankroll.ReleaseFunds(e.ctx, gameAddr, domain.NativeToken, amt(4_000)))
	assert.True(t, e.bankroll.ReservedFunds(e.ctx, domain.NativeToken).Equal(amt(5_900)))
	assert.True(t, e.bankroll.AvailableBalance(e.ctx, domain.NativeToken).Equal(amt(4_000)))
}

func TestRelease_OwnReservationOnly(t *testing.T) {
	const otherGame domain.Address = "0x00000000000000000000000000000000000000d2"
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	require.NoError(t, e.bankroll.RegisterGame(e.ctx, ownerAddr, domain.GameRegistration{Game: otherGame, GameID: "dice"}))

	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(1_000)))
	assert.True(t, e.bankroll.ReservedBy(e.ctx, gameAddr, domain.NativeToken).Equal(amt(1_000)))

	err := e.bankroll.ReleaseFunds(e.ctx, otherGame, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_RESERVED", domain.CodeOf(err))

	require.NoError(t, e.bankroll.RemoveGame(e.ctx, ownerAddr, gameAddr))
	err = e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, "NOT_AUTHORIZED_GAME", domain.CodeOf(err))

	require.NoError(t, e.bankroll.ReleaseFunds(e.ctx, gameAddr, domain.NativeToken, amt(1_000)))
	assert.True(t, e.bankroll.ReservedFunds(e.ctx, domain.NativeToken).IsZero())
	assert.True(t, e.bankroll.ReservedBy(e.ctx, gameAddr, domain.NativeToken).IsZero())

	err = e.bankroll.ReleaseFunds(e.ctx, gameAddr, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, "NOT_AUTHORIZED_GAME", domain.CodeOf(err))
}

func TestReserve_OnlyGames(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, 10_000)

	err := e.bankroll.ReserveFunds(e.ctx, strangerAddr, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, "NOT_AUTHORIZED_GAME", domain.CodeOf(err))

	_, err = e.bankroll.TransferPayout(e.ctx, strangerAddr, playerAddr, amt(1), domain.NativeToken)
	require.Error(t, err)
	assert.Equal(t, "NOT_AUTHORIZED_GAME", domain.CodeOf(err))
}

// --- Payout ---

func TestTransferPayout_Native(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)

	wrapped, err := e.bankroll.TransferPayout(e.ctx, gameAddr, playerAddr, amt(500), domain.NativeToken)
	require.NoError(t, err)
	assert.False(t, wrapped)
	assert.True(t, e.book.BalanceOf(domain.NativeToken, playerAddr).Equal(amt(500)))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, domain.NativeToken).Equal(amt(9_400)))
	assert.Len(t, e.outbox.ByType(domain.EventPayoutTransferred), 1)
}

func TestTransferPayout_WrappedFallback(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	e.book.SetReceiver(playerAddr, rejectingReceiver{})

	wrapped, err := e.bankroll.TransferPayout(e.ctx, gameAddr, playerAddr, amt(700), domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, wrapped)
	assert.True(t, e.book.BalanceOf(domain.NativeToken, playerAddr).IsZero())
	assert.True(t, e.book.BalanceOf(wrappedAddr, playerAddr).Equal(amt(700)))
	assert.True(t, e.bankroll.TotalBalance(e.ctx, domain.NativeToken).Equal(amt(9_200)))
}

func TestTransferPayout_CannotDipIntoReserved(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(9_000)))

	_, err := e.bankroll.TransferPayout(e.ctx, gameAddr, playerAddr, amt(901), domain.NativeToken)
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_FUNDS", domain.CodeOf(err))
	assert.True(t, e.book.BalanceOf(domain.NativeToken, playerAddr).IsZero())
}

func TestTransferPayout_ReentrantHookIsRejected(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	hook := &reenteringReceiver{bankroll: e.bankroll}
	e.book.SetReceiver(playerAddr, hook)

	wrapped, err := e.bankroll.TransferPayout(e.ctx, gameAddr, playerAddr, amt(100), domain.NativeToken)
	require.NoError(t, err)
	assert.True(t, wrapped, "the rejected native send falls back to wrapped")
	require.Error(t, hook.err)
	assert.True(t, errors.Is(hook.err, domain.ErrReentrant()))
	assert.True(t, e.bankroll.ReservedFunds(e.ctx, domain.NativeToken).IsZero())
}

// --- Withdraw ---

func TestWithdrawBankroll(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	require.NoError(t, e.bankroll.SetVault(e.ctx, ownerAddr, vaultAddr))
	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(900)))

	err := e.bankroll.WithdrawBankroll(e.ctx, strangerAddr, strangerAddr, domain.NativeToken, amt(1))
	require.Error(t, err)
	assert.Equal(t, domain.ClassAuthorization, domain.ClassOf(err))

	err = e.bankroll.WithdrawBankroll(e.ctx, vaultAddr, lpAddr, domain.NativeToken, amt(9_001))
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_FUNDS", domain.CodeOf(err))

	require.NoError(t, e.bankroll.WithdrawBankroll(e.ctx, vaultAddr, lpAddr, domain.NativeToken, amt(8_000)))
	assert.True(t, e.book.BalanceOf(domain.NativeToken, lpAddr).Equal(amt(8_000)))
	rest := e.bankroll.AvailableBalance(e.ctx, domain.NativeToken)
	require.NoError(t, e.bankroll.WithdrawBankroll(e.ctx, ownerAddr, ownerAddr, domain.NativeToken, rest))
	assert.True(t, e.bankroll.AvailableBalance(e.ctx, domain.NativeToken).IsZero())
	assert.True(t, e.bankroll.ReservedFunds(e.ctx, domain.NativeToken).Equal(amt(900)))
}

func TestFundBankroll_VaultOnly(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.book.Credit(domain.NativeToken, vaultAddr, amt(1_000)))

	_, err := e.bankroll.FundBankroll(e.ctx, vaultAddr, domain.NativeToken, amt(1_000))
	require.Error(t, err, "no vault designated yet")

	require.Error(t, e.bankroll.SetVault(e.ctx, strangerAddr, vaultAddr))
	require.NoError(t, e.bankroll.SetVault(e.ctx, ownerAddr, vaultAddr))
	assert.Equal(t, vaultAddr, e.bankroll.Vault(e.ctx))

	split, err := e.bankroll.FundBankroll(e.ctx, vaultAddr, domain.NativeToken, amt(1_000))
	require.NoError(t, err)
	assert.True(t, split.Net.Equal(amt(980)))
}

// --- Game administration ---

func TestRegisterGame(t *testing.T) {
	e := newTestEnv(t)

	err := e.bankroll.RegisterGame(e.ctx, strangerAddr, domain.GameRegistration{Game: gameAddr, GameID: "coinflip"})
	require.Error(t, err)
	assert.Equal(t, domain.ClassAuthorization, domain.ClassOf(err))

	err = e.bankroll.RegisterGame(e.ctx, ownerAddr, domain.GameRegistration{Game: gameAddr, GameID: "coinflip", CreatorBps: 1001, Creator: creatorAddr})
	require.Error(t, err)
	assert.Equal(t, domain.ClassValidation, domain.ClassOf(err))

	err = e.bankroll.RegisterGame(e.ctx, ownerAddr, domain.GameRegistration{Game: gameAddr, GameID: "coinflip", CreatorBps: 100})
	require.Error(t, err, "creator share needs a creator")

	require.NoError(t, e.bankroll.RegisterGame(e.ctx, registryAddr, domain.GameRegistration{Game: gameAddr, GameID: "coinflip"}))
	assert.False(t, e.bankroll.IsValidWager(e.ctx, gameAddr, domain.NativeToken), "tokens start disabled")

	require.NoError(t, e.bankroll.SetTokenEnabled(e.ctx, ownerAddr, gameAddr, domain.NativeToken, true))
	assert.True(t, e.bankroll.IsValidWager(e.ctx, gameAddr, domain.NativeToken))
	assert.False(t, e.bankroll.IsValidWager(e.ctx, gameAddr, usdcAddr))

	reg, ok := e.bankroll.Game(e.ctx, gameAddr)
	require.True(t, ok)
	assert.Equal(t, "coinflip", reg.GameID)

	require.NoError(t, e.bankroll.RemoveGame(e.ctx, ownerAddr, gameAddr))
	assert.False(t, e.bankroll.IsValidWager(e.ctx, gameAddr, domain.NativeToken))
	require.Error(t, e.bankroll.RemoveGame(e.ctx, ownerAddr, gameAddr))
}

// --- Execute ---

type recordingCallee struct{ data []byte }

func (c *recordingCallee) HandleCall(_ context.Context, _ domain.Address, _ domain.Amount, data []byte) ([]byte, error) {
	c.data = data
	return []byte("migrated"), nil
}

func TestExecute(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(4_900)))

	const target domain.Address = "0x00000000000000000000000000000000000000b9"
	callee := &recordingCallee{}
	e.book.SetCallee(target, callee)

	_, err := e.bankroll.Execute(e.ctx, strangerAddr, Call{To: target, Value: amt(1)})
	require.Error(t, err)
	assert.Equal(t, domain.ClassAuthorization, domain.ClassOf(err))

	_, err = e.bankroll.Execute(e.ctx, ownerAddr, Call{To: target, Value: amt(5_001)})
	require.Error(t, err, "cannot spend reserved funds")

	res, err := e.bankroll.Execute(e.ctx, registryAddr, Call{To: target, Value: amt(5_000), Data: []byte("migrate")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []byte("migrated"), res.ReturnData)
	assert.Equal(t, []byte("migrate"), callee.data)
	assert.True(t, e.book.BalanceOf(domain.NativeToken, target).Equal(amt(5_000)))
	assert.Len(t, e.outbox.ByType(domain.EventExecuted), 1)
}

// --- Audit ---

func TestAudit_AllPass(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 0)
	e.fund(t, 10_000)
	require.NoError(t, e.bankroll.ReserveFunds(e.ctx, gameAddr, domain.NativeToken, amt(9_900)))

	report := e.bankroll.Audit(e.ctx)
	assert.True(t, report.AllPassed)
	assert.Len(t, report.Pools, len(e.bankroll.Tokens()))
	for _, chk := range report.Invariants {
		assert.True(t, chk.Passed, chk.Name)
	}

	snap := e.bankroll.Snapshot(e.ctx)
	require.NotEmpty(t, snap)
	assert.Equal(t, domain.NativeToken, snap[0].Token)
	assert.True(t, snap[0].Reserved.Equal(amt(9_900)))
}
