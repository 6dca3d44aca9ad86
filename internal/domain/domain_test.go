package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		wantErr bool
	}{
		{"zero address", ZeroAddress, false},
		{"lower hex", "0x00000000000000000000000000000000000000a1", false},
		{"upper hex", "0x00000000000000000000000000000000000000A1", true},
		{"missing prefix", "00000000000000000000000000000000000000a1", true},
		{"too short", "0xa1", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ClassValidation, ClassOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  Amount
		wantErr bool
	}{
		{"zero", Zero, false},
		{"positive", NewAmount(42), false},
		{"one ether", Units(1, 18), false},
		{"negative", NewAmount(-1), true},
		{"fractional", NewAmount(3).Div(NewAmount(2)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	err := ValidatePositiveAmount(Zero, "wager")
	require.Error(t, err)
	assert.Equal(t, "ZERO_AMOUNT", CodeOf(err))
	assert.Contains(t, err.Error(), "wager")

	require.NoError(t, ValidatePositiveAmount(NewAmount(1), "wager"))
}

func TestValidateBps(t *testing.T) {
	require.NoError(t, ValidateBps(0, 1000, "fee"))
	require.NoError(t, ValidateBps(1000, 1000, "fee"))
	require.Error(t, ValidateBps(1001, 1000, "fee"))
	require.Error(t, ValidateBps(-1, 1000, "fee"))
}

// --- Amount Tests ---

func TestMulDivFloors(t *testing.T) {
	assert.True(t, MulDiv(NewAmount(10), NewAmount(1), NewAmount(3)).Equal(NewAmount(3)))
	assert.True(t, MulDiv(NewAmount(2), NewAmount(2), NewAmount(3)).Equal(NewAmount(1)))
	assert.True(t, MulDiv(NewAmount(5), NewAmount(5), Zero).IsZero())
}

func TestMulBps(t *testing.T) {
	tests := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{10_000, 200, 200},
		{200, 5000, 100},
		{99, 200, 1},
		{49, 200, 0},
		{1_000_000, 112, 11_200},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_at_%d", tt.amount, tt.bps), func(t *testing.T) {
			got := MulBps(NewAmount(tt.amount), tt.bps)
			assert.True(t, got.Equal(NewAmount(tt.want)), "got %s", got)
		})
	}
}

func TestSubFloor(t *testing.T) {
	assert.True(t, SubFloor(NewAmount(5), NewAmount(7)).IsZero())
	assert.True(t, SubFloor(NewAmount(7), NewAmount(5)).Equal(NewAmount(2)))
}

func TestUnitsAndPow10(t *testing.T) {
	assert.Equal(t, "1000000", Units(1, 6).String())
	assert.Equal(t, "1000000000000000000", Pow10(18).String())
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1000000000000000000")
	require.NoError(t, err)
	assert.True(t, a.Equal(Units(1, 18)))

	_, err = ParseAmount("-5")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
	_, err = ParseAmount("abc")
	require.Error(t, err)
}

// --- Wager Tests ---

func TestPendingWagerTotalStake(t *testing.T) {
	w := &PendingWager{Wager: NewAmount(250), Bet: BetConfig{Count: 4}}
	assert.True(t, w.TotalStake().Equal(NewAmount(1000)))
}

func TestSettlementResultNet(t *testing.T) {
	r := &SettlementResult{Payout: NewAmount(300), Staked: NewAmount(500)}
	assert.True(t, r.Net().Equal(NewAmount(-200)))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, Address("0xabc"), NormalizeAddress("  0xABC "))
	assert.True(t, NativeToken.IsNative())
	assert.True(t, Address("").IsZero())
}

// --- Suspension Tests ---

func TestSuspensionInEffect(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Suspension{Player: "0x01", Until: now.Add(time.Hour), Active: true}
	assert.True(t, s.InEffect(now))
	assert.False(t, s.InEffect(now.Add(time.Hour)))

	s.Active = false
	assert.False(t, s.InEffect(now))

	ban := Suspension{Until: SuspendedForever, Active: true}
	assert.True(t, IsPermanent(ban.Until))
	assert.True(t, ban.InEffect(now.AddDate(500, 0, 0)))
}

// --- Window Tests ---

func TestWithdrawWindowContainsInclusive(t *testing.T) {
	opens := time.Unix(1000, 0)
	w := WithdrawWindow{Opens: opens, Closes: opens.Add(time.Hour)}
	assert.True(t, w.Contains(opens))
	assert.True(t, w.Contains(opens.Add(time.Hour)))
	assert.False(t, w.Contains(opens.Add(-time.Second)))
	assert.False(t, w.Contains(opens.Add(time.Hour+time.Second)))
}

// --- Error Tests ---

func TestAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantClass  ErrorClass
		wantStatus int
	}{
		{"not found", ErrNotFound("pool", "0x01"), "NOT_FOUND", ClassValidation, 404},
		{"not game", ErrNotGame("0x02"), "NOT_AUTHORIZED_GAME", ClassAuthorization, 403},
		{"insufficient", ErrInsufficientFunds("low"), "INSUFFICIENT_FUNDS", ClassState, 409},
		{"outside window", ErrOutsideWindow(), "OUTSIDE_WITHDRAW_WINDOW", ClassState, 409},
		{"external", ErrExternalCall("send", errors.New("boom")), "EXTERNAL_CALL_FAILED", ClassExternal, 502},
		{"timeout", ErrTimeoutNotReached(199, 200), "TIMEOUT_NOT_REACHED", ClassTimeout, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantClass, tt.err.Class)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
		})
	}
}

func TestAppErrorIsMatchesCode(t *testing.T) {
	wrapped := fmt.Errorf("withdraw: %w", ErrOutsideWindow())
	assert.True(t, errors.Is(wrapped, ErrOutsideWindow()))
	assert.False(t, errors.Is(wrapped, ErrPoolInactive("0x01")))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("recipient rejected")
	err := ErrExternalCall("native transfer", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "recipient rejected")
}

func TestSuspendedMessage(t *testing.T) {
	assert.Contains(t, ErrSuspended("0x01", SuspendedForever).Message, "permanently")
	assert.Contains(t, ErrSuspended("0x01", time.Unix(0, 0)).Message, "1970-01-01")
}

func TestAwaitingRandomnessError(t *testing.T) {
	err := error(&AwaitingRandomnessError{Player: "0x01", RequestID: "req-7"})

	var awaiting *AwaitingRandomnessError
	require.True(t, errors.As(err, &awaiting))
	assert.Equal(t, RequestID("req-7"), awaiting.RequestID)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AWAITING_RANDOMNESS", appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Contains(t, err.Error(), "req-7")
}

// --- Event Tests ---

func TestNewEvent(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	evt := NewEvent(AggregateBankroll, "0xtoken", EventDeposit, map[string]string{"amount": "5"}, at)

	assert.Equal(t, AggregateBankroll, evt.AggregateType)
	assert.Equal(t, "0xtoken", evt.AggregateID)
	assert.Equal(t, "0xtoken", evt.PartitionKey)
	assert.Equal(t, EventDeposit, evt.EventType)
	assert.Equal(t, at, evt.OccurredAt)
	assert.NotEqual(t, [16]byte{}, [16]byte(evt.EventID))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "5", payload["amount"])
}

func TestNewSuspensionEvent(t *testing.T) {
	at := time.Unix(0, 0)
	evt := NewSuspensionEvent(Suspension{Player: "0x01", Until: SuspendedForever, Active: true}, at)
	assert.Equal(t, EventPlayerSuspended, evt.EventType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, true, payload["permanent"])

	lifted := NewSuspensionEvent(Suspension{Player: "0x01"}, at)
	assert.Equal(t, EventPlayerUnsuspended, lifted.EventType)
}

func TestNewWagerSettledEventPayload(t *testing.T) {
	r := &SettlementResult{
		GameID:     "coinflip",
		RequestID:  "req-1",
		Player:     "0x01",
		BetsPlayed: 2,
		Payout:     NewAmount(400),
		Staked:     NewAmount(200),
	}
	evt := NewWagerSettledEvent(r, time.Unix(0, 0))
	assert.Equal(t, "req-1", evt.AggregateID)

	var decoded SettlementResult
	require.NoError(t, json.Unmarshal(evt.Payload, &decoded))
	assert.Equal(t, uint32(2), decoded.BetsPlayed)
	assert.True(t, decoded.Payout.Equal(NewAmount(400)))
}
