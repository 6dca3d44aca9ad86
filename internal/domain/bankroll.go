package domain

import "time"

// SuspendedForever is the expiry recorded for a permanent ban.
var SuspendedForever = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// IsPermanent reports whether until is the permanent-ban sentinel.
func IsPermanent(until time.Time) bool {
	return !until.Before(SuspendedForever)
}

// Suspension is a player's responsible-gaming self-exclusion record.
type Suspension struct {
	Player Address   `json:"player"`
	Until  time.Time `json:"until"`
	Active bool      `json:"active"`
}

// InEffect reports whether the suspension still blocks play at now.
func (s Suspension) InEffect(now time.Time) bool {
	return s.Active && now.Before(s.Until)
}

// GameRegistration is an allowlisted game service and its revenue-share agreement.
type GameRegistration struct {
	Game       Address `json:"game"`
	GameID     string  `json:"game_id"`
	Creator    Address `json:"creator,omitempty"`
	CreatorBps int64   `json:"creator_bps"`
}

// FeeSplit is how one deposit's protocol fee was divided.
type FeeSplit struct {
	Gross      Amount `json:"gross"`
	Fee        Amount `json:"fee"`
	CreatorCut Amount `json:"creator_cut"`
	Treasury   Amount `json:"treasury"`
	Reinvested Amount `json:"reinvested"`
	Net        Amount `json:"net"`
}

// PoolState is the ledger-side accounting for one token.
type PoolState struct {
	Token        Address `json:"token"`
	TotalBalance Amount  `json:"total_balance"`
	Reserved     Amount  `json:"reserved"`
	Available    Amount  `json:"available"`
	FeesAccrued  Amount  `json:"fees_accrued"`
}
