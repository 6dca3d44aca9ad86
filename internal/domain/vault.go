package domain

import "time"

// StakingPool is the vault's LP pool for one token. TotalStaked and reward math
// are in 18-decimal normalized units; AccRewardPerShare is scaled by 1e18.
type StakingPool struct {
	Token             Address   `json:"token"`
	Decimals          uint8     `json:"decimals"`
	TotalShares       Amount    `json:"total_shares"`
	TotalStaked       Amount    `json:"total_staked"`
	AccRewardPerShare Amount    `json:"acc_reward_per_share"`
	RewardRate        Amount    `json:"reward_rate"`
	LastRewardTime    time.Time `json:"last_reward_time"`
	Active            bool      `json:"active"`
}

// UserStake is one LP's position in one pool.
type UserStake struct {
	Shares          Amount    `json:"shares"`
	RewardDebt      Amount    `json:"reward_debt"`
	PendingRewards  Amount    `json:"pending_rewards"`
	LastDepositTime time.Time `json:"last_deposit_time"`
}

// WithdrawWindow is one epoch's withdrawal opportunity. Both ends are inclusive.
type WithdrawWindow struct {
	Epoch  uint64    `json:"epoch"`
	Opens  time.Time `json:"opens"`
	Closes time.Time `json:"closes"`
}

// Contains reports whether t falls inside the window.
func (w WithdrawWindow) Contains(t time.Time) bool {
	return !t.Before(w.Opens) && !t.After(w.Closes)
}

// Lockup reports the withdrawal window status at a point in time.
type Lockup struct {
	Open      bool           `json:"open"`
	Window    WithdrawWindow `json:"window"`
	Remaining time.Duration  `json:"remaining"`
}
