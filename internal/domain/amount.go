package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative integer quantity of token base units (wei-style).
// Every division on an Amount floors to an integer.
type Amount = decimal.Decimal

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator = 10_000

// Zero is the zero Amount.
var Zero = decimal.Zero

// NewAmount returns v base units.
func NewAmount(v int64) Amount {
	return decimal.NewFromInt(v)
}

// Units returns n whole tokens expressed in base units for a token with the given decimals.
func Units(n int64, decimals uint8) Amount {
	return decimal.New(n, int32(decimals))
}

// Pow10 returns 10^n as an Amount.
func Pow10(n uint8) Amount {
	return decimal.New(1, int32(n))
}

// MulDiv returns floor(a*b/c). A zero divisor yields zero.
func MulDiv(a, b, c Amount) Amount {
	if c.IsZero() {
		return Zero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// Div returns floor(a/b). A zero divisor yields zero.
func Div(a, b Amount) Amount {
	if b.IsZero() {
		return Zero
	}
	q, _ := a.QuoRem(b, 0)
	return q
}

// MulBps returns floor(a*bps/10_000).
func MulBps(a Amount, bps int64) Amount {
	return MulDiv(a, decimal.NewFromInt(bps), decimal.NewFromInt(BpsDenominator))
}

// SubFloor returns max(0, a-b).
func SubFloor(a, b Amount) Amount {
	if a.LessThanOrEqual(b) {
		return Zero
	}
	return a.Sub(b)
}

// ParseAmount parses a base-unit integer string and rejects negative or fractional values.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if err := ValidateAmount(d); err != nil {
		return Zero, err
	}
	return d, nil
}
