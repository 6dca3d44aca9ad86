package ledger

import (
	"testing"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_InvariantsHoldThroughMixedCommands(t *testing.T) {
	e := newTestEnv(t)
	e.registerGame(t, 500)
	require.NoError(t, e.bankroll.SetVault(e.ctx, ownerAddr, vaultAddr))
	require.NoError(t, e.book.Credit(domain.NativeToken, lpAddr, amt(50_000)))
	require.NoError(t, e.book.Credit(usdcAddr, lpAddr, amt(50_000)))
	e.book.SetReceiver(playerAddr, rejectingReceiver{})

	commands := []ReplayCommand{
		{Type: "deposit", Caller: lpAddr, Token: domain.NativeToken, Amount: amt(20_000)},
		{Type: "deposit", Caller: lpAddr, Token: usdcAddr, Amount: amt(10_000)},
		{Type: "reserve", Caller: gameAddr, Token: domain.NativeToken, Amount: amt(15_000)},
		{Type: "reserve", Caller: gameAddr, Token: domain.NativeToken, Amount: amt(10_000)},
		{Type: "payout", Caller: gameAddr, To: playerAddr, Token: domain.NativeToken, Amount: amt(4_000)},
		{Type: "payout", Caller: gameAddr, To: playerAddr, Token: domain.NativeToken, Amount: amt(1_000)},
		{Type: "release", Caller: gameAddr, Token: domain.NativeToken, Amount: amt(15_001)},
		{Type: "release", Caller: gameAddr, Token: domain.NativeToken, Amount: amt(5_000)},
		{Type: "withdraw", Caller: vaultAddr, To: lpAddr, Token: usdcAddr, Amount: amt(9_000)},
		{Type: "withdraw", Caller: strangerAddr, To: strangerAddr, Token: usdcAddr, Amount: amt(1)},
		{Type: "sweep", Caller: treasuryAddr, Token: domain.NativeToken},
		{Type: "reserve", Caller: strangerAddr, Token: usdcAddr, Amount: amt(1)},
	}

	result, err := NewReplayHarness(e.bankroll).Execute(e.ctx, commands)
	require.NoError(t, err)

	for _, chk := range result.Invariants {
		assert.True(t, chk.Passed, "%s: %s", chk.Name, chk.Detail)
	}
	assert.True(t, result.AllPassed)
	assert.Equal(t, 7, result.Executed)
	assert.Equal(t, 5, result.Rejected)

	native := result.Final[0]
	assert.Equal(t, domain.NativeToken, native.Token)
	assert.True(t, native.Reserved.Equal(amt(10_000)))
	assert.True(t, native.FeesAccrued.IsZero(), "swept")
	assert.True(t, e.book.BalanceOf(wrappedAddr, playerAddr).Equal(amt(4_000)))
}

func TestReplay_UnknownCommandAborts(t *testing.T) {
	e := newTestEnv(t)
	_, err := NewReplayHarness(e.bankroll).Execute(e.ctx, []ReplayCommand{{Type: "mint"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command type")
}
