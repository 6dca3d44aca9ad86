package infra

import (
	"fmt"
	"math/big"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToAmount converts a pgtype.Numeric (PostgreSQL numeric(78,0)) to an Amount.
// Returns an error if the value is NULL, NaN, infinite, or not a whole number.
func NumericToAmount(n pgtype.Numeric) (domain.Amount, error) {
	if !n.Valid {
		return domain.Zero, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return domain.Zero, fmt.Errorf("numeric value is not finite")
	}
	if n.Int == nil {
		return domain.Zero, nil
	}

	// pgtype.Numeric stores value as Int * 10^Exp
	d := decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp)
	if !d.IsInteger() {
		return domain.Zero, fmt.Errorf("numeric value %s has fractional digits", d)
	}
	return d, nil
}

// AmountToNumeric converts an Amount for writing to a PostgreSQL numeric column.
func AmountToNumeric(a domain.Amount) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              a.Coefficient(),
		Exp:              a.Exponent(),
		NaN:              false,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}
