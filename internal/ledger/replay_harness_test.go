package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// ReplayResult holds the outcome of a deterministic replay run.
type ReplayResult struct {
	Executed   int
	Rejected   int
	Final      []domain.PoolState
	Invariants []InvariantCheck
	AllPassed  bool
}

// ReplayCommand is a single command in a replay sequence.
type ReplayCommand struct {
	Type   string // "deposit", "reserve", "release", "payout", "withdraw", "sweep"
	Caller domain.Address
	To     domain.Address
	Token  domain.Address
	Amount domain.Amount
}

// ReplayHarness executes a deterministic sequence of bankroll commands and
// validates the accounting invariants after every step.
//
// Invariants:
//  1. Audit invariants hold after each command (reserved <= total, fees covered)
//  2. A rejected command leaves every pool exactly as it was
type ReplayHarness struct {
	bankroll *Bankroll
}

// NewReplayHarness creates a replay harness.
func NewReplayHarness(bankroll *Bankroll) *ReplayHarness {
	return &ReplayHarness{bankroll: bankroll}
}

// Execute runs commands in order. Commands are allowed to fail; a failure
// only counts against the run if it changed state.
func (h *ReplayHarness) Execute(ctx context.Context, commands []ReplayCommand) (*ReplayResult, error) {
	result := &ReplayResult{AllPassed: true}

	for i, cmd := range commands {
		before := h.bankroll.Snapshot(ctx)
		err := h.executeCommand(ctx, cmd)
		if err != nil && domain.ClassOf(err) == "" {
			return nil, fmt.Errorf("replay command %d (%s): %w", i, cmd.Type, err)
		}

		if err != nil {
			result.Rejected++
			after := h.bankroll.Snapshot(ctx)
			unchanged := samePools(before, after)
			if !unchanged {
				result.AllPassed = false
			}
			result.Invariants = append(result.Invariants, InvariantCheck{
				Name:   fmt.Sprintf("rejected_is_noop:%d", i),
				Passed: unchanged,
				Detail: fmt.Sprintf("%s rejected: %v", cmd.Type, err),
			})
		} else {
			result.Executed++
		}

		audit := h.bankroll.Audit(ctx)
		if !audit.AllPassed {
			result.AllPassed = false
			for _, chk := range audit.Invariants {
				if !chk.Passed {
					chk.Name = fmt.Sprintf("%s@%d", chk.Name, i)
					result.Invariants = append(result.Invariants, chk)
				}
			}
		}
	}

	result.Final = h.bankroll.Snapshot(ctx)
	return result, nil
}

func (h *ReplayHarness) executeCommand(ctx context.Context, cmd ReplayCommand) error {
	b := h.bankroll
	switch cmd.Type {
	case "deposit":
		if !cmd.Token.IsNative() {
			if err := b.book.Approve(cmd.Token, cmd.Caller, b.Address(), cmd.Amount); err != nil {
				return err
			}
		}
		_, err := b.Deposit(ctx, cmd.Caller, cmd.Token, cmd.Amount)
		return err
	case "reserve":
		return b.ReserveFunds(ctx, cmd.Caller, cmd.Token, cmd.Amount)
	case "release":
		return b.ReleaseFunds(ctx, cmd.Caller, cmd.Token, cmd.Amount)
	case "payout":
		_, err := b.TransferPayout(ctx, cmd.Caller, cmd.To, cmd.Amount, cmd.Token)
		return err
	case "withdraw":
		return b.WithdrawBankroll(ctx, cmd.Caller, cmd.To, cmd.Token, cmd.Amount)
	case "sweep":
		_, err := b.SweepFees(ctx, cmd.Caller, cmd.Token)
		return err
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

func samePools(a, b []domain.PoolState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Token != b[i].Token ||
			!a[i].TotalBalance.Equal(b[i].TotalBalance) ||
			!a[i].Reserved.Equal(b[i].Reserved) ||
			!a[i].FeesAccrued.Equal(b[i].FeesAccrued) {
			return false
		}
	}
	return true
}
