package settlement

import (
	"encoding/json"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// Rules decide a game's outcomes. One random word decides one bet.
type Rules interface {
	// GameID names the game, e.g. "coinflip".
	GameID() string

	// Validate rejects bet parameters the game cannot settle.
	Validate(bet domain.BetConfig) error

	// Payout is what a single bet of wager returns for word (zero on a loss).
	Payout(wager domain.Amount, word domain.Word, bet domain.BetConfig) domain.Amount

	// MaxPayout is the most a single bet of wager can return.
	MaxPayout(wager domain.Amount, bet domain.BetConfig) domain.Amount

	// RiskScale divides the bankroll risk cap for games with larger multipliers.
	RiskScale() int64
}

// CoinFlipParams selects the side the player backs.
type CoinFlipParams struct {
	Heads bool `json:"heads"`
}

// CoinFlip pays MultiplierBps/10_000 of the wager when the word's parity
// matches the chosen side: even words are heads.
type CoinFlip struct {
	MultiplierBps int64
}

// NewCoinFlip returns a coin flip paying 2x.
func NewCoinFlip() *CoinFlip {
	return &CoinFlip{MultiplierBps: 2 * domain.BpsDenominator}
}

func (c *CoinFlip) GameID() string { return "coinflip" }

func (c *CoinFlip) RiskScale() int64 { return 1 }

func (c *CoinFlip) Validate(bet domain.BetConfig) error {
	_, err := c.params(bet)
	return err
}

func (c *CoinFlip) Payout(wager domain.Amount, word domain.Word, bet domain.BetConfig) domain.Amount {
	p, err := c.params(bet)
	if err != nil {
		return domain.Zero
	}
	heads := word%2 == 0
	if heads != p.Heads {
		return domain.Zero
	}
	return domain.MulBps(wager, c.MultiplierBps)
}

func (c *CoinFlip) MaxPayout(wager domain.Amount, _ domain.BetConfig) domain.Amount {
	return domain.MulBps(wager, c.MultiplierBps)
}

// params decodes the side; empty params back heads.
func (c *CoinFlip) params(bet domain.BetConfig) (CoinFlipParams, error) {
	p := CoinFlipParams{Heads: true}
	if len(bet.Params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(bet.Params, &p); err != nil {
		return p, domain.ErrValidation(fmt.Sprintf("invalid coinflip params: %v", err))
	}
	return p, nil
}
