package vault

import (
	"fmt"
	"strings"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/shopspring/decimal"
)

// SecondsPerYear is the year length reward rates are quoted against.
const SecondsPerYear = 31_536_000

// ParseAPY reads an annual yield in percent, as "8" or "8%".
func ParseAPY(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	apy, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.ErrValidation(fmt.Sprintf("invalid APY %q", s))
	}
	if apy.IsNegative() {
		return decimal.Zero, domain.ErrValidation("APY must not be negative")
	}
	return apy, nil
}

// RewardRateForAPY is the per-second reward rate that pays apyPercent a
// year on tvl: floor(tvl × apy / 100 / SecondsPerYear).
func RewardRateForAPY(tvl domain.Amount, apyPercent decimal.Decimal) domain.Amount {
	annual := tvl.Mul(apyPercent).Div(decimal.NewFromInt(100)).Floor()
	return domain.Div(annual, domain.NewAmount(SecondsPerYear))
}
