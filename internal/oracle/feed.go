// Package oracle supplies the exchange rate used to price the randomness
// provider's flat fee in native currency.
package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
)

// PriceFeed reports the latest price and the number of decimals it carries.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (domain.Amount, uint8, error)
}

// StaticFeed is an operator-set price, updated through the admin API.
type StaticFeed struct {
	mu       sync.RWMutex
	price    domain.Amount
	decimals uint8
}

// NewStaticFeed creates a feed with an initial price.
func NewStaticFeed(price domain.Amount, decimals uint8) *StaticFeed {
	return &StaticFeed{price: price, decimals: decimals}
}

// LatestPrice returns the configured price. A non-positive price is an error.
func (f *StaticFeed) LatestPrice(_ context.Context) (domain.Amount, uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.price.IsPositive() {
		return domain.Zero, 0, domain.ErrExternalCall("price feed", fmt.Errorf("stale or non-positive price %s", f.price))
	}
	return f.price, f.decimals, nil
}

// Set replaces the price.
func (f *StaticFeed) Set(price domain.Amount, decimals uint8) error {
	if err := domain.ValidatePositiveAmount(price, "price"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
	f.decimals = decimals
	return nil
}

// Convert prices amount through the feed: amount × price / 10^decimals.
func Convert(ctx context.Context, feed PriceFeed, amount domain.Amount) (domain.Amount, error) {
	if amount.IsZero() {
		return domain.Zero, nil
	}
	price, decimals, err := feed.LatestPrice(ctx)
	if err != nil {
		return domain.Zero, err
	}
	return domain.MulDiv(amount, price, domain.Pow10(decimals)), nil
}
