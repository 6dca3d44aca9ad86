package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Address identifies an account: a player, a game service, an LP, a token contract or a sink.
type Address string

// ZeroAddress doubles as the native-asset token identifier.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// NativeToken is the token identifier for the chain's native asset.
const NativeToken = ZeroAddress

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool { return a == "" || a == ZeroAddress }

// IsNative reports whether a denotes the native asset.
func (a Address) IsNative() bool { return a.IsZero() }

func (a Address) String() string { return string(a) }

// NormalizeAddress lower-cases and trims an address so map keys compare reliably.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// RequestID correlates a randomness request with its asynchronous fulfillment.
type RequestID string

// Word is one random value delivered by the randomness gateway.
type Word = uint64

// WagerState is the per (player, game) settlement state.
type WagerState string

const (
	WagerIdle               WagerState = "idle"
	WagerAwaitingRandomness WagerState = "awaiting_randomness"
	WagerSettled            WagerState = "settled"
	WagerRefunded           WagerState = "refunded"
)

// BetConfig is the per-play configuration: how many bets, when to stop early,
// and opaque game parameters interpreted by the game's rules.
type BetConfig struct {
	Count    uint32          `json:"count"`
	StopGain Amount          `json:"stop_gain"`
	StopLoss Amount          `json:"stop_loss"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// PendingWager is one in-flight play awaiting randomness.
type PendingWager struct {
	GameID       string    `json:"game_id"`
	Player       Address   `json:"player"`
	Token        Address   `json:"token"`
	Wager        Amount    `json:"wager"`
	Bet          BetConfig `json:"bet"`
	RequestID    RequestID `json:"request_id"`
	CreatedBlock uint64    `json:"created_block"`
	CreatedAt    time.Time `json:"created_at"`
	Reserved     Amount    `json:"reserved"`
	Fee          Amount    `json:"fee"`
}

// TotalStake is the wager per bet multiplied by the number of bets.
func (w *PendingWager) TotalStake() Amount {
	return w.Wager.Mul(NewAmount(int64(w.Bet.Count)))
}

// SettlementResult describes how a fulfilled wager was settled.
type SettlementResult struct {
	GameID     string    `json:"game_id"`
	RequestID  RequestID `json:"request_id"`
	Player     Address   `json:"player"`
	Token      Address   `json:"token"`
	BetsPlayed uint32    `json:"bets_played"`
	Payouts    []Amount  `json:"payouts"`
	Payout     Amount    `json:"payout"`
	Staked     Amount    `json:"staked"`
	Refunded   Amount    `json:"refunded"`
}

// Net is the player's profit (positive) or loss (negative) on the played bets.
func (r *SettlementResult) Net() Amount {
	return r.Payout.Sub(r.Staked)
}
