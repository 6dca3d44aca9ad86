package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/oracle"
)

// FeeSchedule prices a randomness request in native currency.
type FeeSchedule struct {
	GasPrice           domain.Amount // native per gas unit
	CallbackGasBase    int64
	CallbackGasPerWord int64
	L1DataCost         domain.Amount // settlement-layer data cost
	L1MultiplierBps    int64
	ProviderFee        domain.Amount // flat provider fee, converted through the oracle
}

// Quote returns the fee for a request of count words:
//
//	gasPrice × (base + perWord × count)
//	+ l1DataCost × l1Multiplier / 10_000
//	+ providerFee × price / 10^decimals
func (f FeeSchedule) Quote(ctx context.Context, feed oracle.PriceFeed, count uint32) (domain.Amount, error) {
	gas := f.CallbackGasBase + f.CallbackGasPerWord*int64(count)
	execution := f.GasPrice.Mul(domain.NewAmount(gas))
	l1 := domain.MulBps(f.L1DataCost, f.L1MultiplierBps)

	provider := domain.Zero
	if f.ProviderFee.IsPositive() {
		if feed == nil {
			return domain.Zero, domain.ErrInternal("provider fee configured without a price feed", nil)
		}
		converted, err := oracle.Convert(ctx, feed, f.ProviderFee)
		if err != nil {
			return domain.Zero, fmt.Errorf("convert provider fee: %w", err)
		}
		provider = converted
	}

	return execution.Add(l1).Add(provider), nil
}
