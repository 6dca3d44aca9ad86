// Command rewardrate converts a target APY into a vault reward rate per
// second for a given TVL, both in token base units.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/vault"
	"github.com/shopspring/decimal"
)

func main() {
	tvl := flag.String("tvl", "", "total value locked, in whole tokens")
	apy := flag.String("apy", "", "target APY in percent, e.g. 12.5 or 12.5%")
	decimals := flag.Uint("decimals", 18, "token decimals")
	flag.Parse()

	if err := run(*tvl, *apy, *decimals); err != nil {
		fmt.Fprintln(os.Stderr, "rewardrate:", err)
		os.Exit(2)
	}
}

func run(tvlArg, apyArg string, decimals uint) error {
	if tvlArg == "" || apyArg == "" {
		flag.Usage()
		return fmt.Errorf("-tvl and -apy are required")
	}
	if decimals > 36 {
		return fmt.Errorf("decimals must be at most 36")
	}
	whole, err := decimal.NewFromString(tvlArg)
	if err != nil || whole.IsNegative() {
		return fmt.Errorf("invalid tvl %q", tvlArg)
	}
	apy, err := vault.ParseAPY(apyArg)
	if err != nil {
		return err
	}

	tvl := whole.Mul(domain.Pow10(uint8(decimals))).Floor()
	rate := vault.RewardRateForAPY(tvl, apy)
	fmt.Printf("tvl=%s apy=%s%% reward_rate=%s/s\n", tvl, apy, rate)
	fmt.Printf("addPool(native, %s)\n", rate)
	return nil
}
