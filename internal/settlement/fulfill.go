package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/bankroll/internal/domain"
)

// FulfillRandomWords settles the wager behind id. Only the gateway may call
// it, and an id is consumed by its first successful delivery.
func (s *Service) FulfillRandomWords(ctx context.Context, from domain.Address, id domain.RequestID, words []domain.Word) error {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if from != s.gateway.Address() {
		return domain.ErrForbidden(fmt.Sprintf("%s is not the randomness gateway", from))
	}
	player, ok := s.byRequest[id]
	if !ok {
		return domain.ErrUnknownRequest(id)
	}
	w := s.pending[player]
	if uint32(len(words)) != w.Bet.Count {
		return domain.ErrValidation(fmt.Sprintf("expected %d random words, got %d", w.Bet.Count, len(words)))
	}

	result := s.resolve(w, words)
	if err := s.checkSettle(ctx, w, result); err != nil {
		return err
	}

	delete(s.pending, player)
	delete(s.byRequest, id)

	if committed, err := s.settle(ctx, w, result); err != nil {
		if !committed {
			s.restore(w)
		}
		s.logger.Error("settlement side effect failed", "request_id", id, "player", player, "committed", committed, "error", err)
		return domain.ErrInternal("settle wager", err)
	}

	s.emit(ctx, domain.NewWagerSettledEvent(result, s.clock.Now()))
	s.logger.Info("wager settled",
		"player", player,
		"request_id", id,
		"bets_played", result.BetsPlayed,
		"payout", result.Payout,
		"refunded", result.Refunded,
	)
	return nil
}

// resolve plays bets in order until the batch ends or a stop triggers.
func (s *Service) resolve(w *domain.PendingWager, words []domain.Word) *domain.SettlementResult {
	result := &domain.SettlementResult{
		GameID:    w.GameID,
		RequestID: w.RequestID,
		Player:    w.Player,
		Token:     w.Token,
		Payouts:   make([]domain.Amount, 0, len(words)),
		Payout:    domain.Zero,
	}

	net := domain.Zero
	for _, word := range words {
		payout := s.rules.Payout(w.Wager, word, w.Bet)
		result.Payouts = append(result.Payouts, payout)
		result.Payout = result.Payout.Add(payout)
		result.BetsPlayed++
		net = net.Add(payout).Sub(w.Wager)

		if w.Bet.StopGain.IsPositive() && net.GreaterThanOrEqual(w.Bet.StopGain) {
			break
		}
		if w.Bet.StopLoss.IsPositive() && net.Neg().GreaterThanOrEqual(w.Bet.StopLoss) {
			break
		}
	}

	result.Staked = w.Wager.Mul(domain.NewAmount(int64(result.BetsPlayed)))
	result.Refunded = w.Wager.Mul(domain.NewAmount(int64(w.Bet.Count - result.BetsPlayed)))
	return result
}

// checkSettle runs every check the settlement side effects depend on, so a
// rejected delivery leaves the wager, escrow and ledger untouched.
func (s *Service) checkSettle(ctx context.Context, w *domain.PendingWager, result *domain.SettlementResult) error {
	if _, ok := s.bankroll.Game(ctx, s.cfg.Address); !ok {
		return domain.ErrNotGame(s.cfg.Address)
	}
	if err := s.checkUnwind(ctx, w); err != nil {
		return err
	}
	if result.Payout.IsPositive() {
		if capacity := s.payoutCapacity(ctx, w, result.Staked); result.Payout.GreaterThan(capacity) {
			return domain.ErrInsufficientFunds(fmt.Sprintf("payout %s exceeds bankroll capacity %s", result.Payout, capacity))
		}
	}
	return nil
}

// checkUnwind verifies the wager's reservation is still held by this game
// and its stake is still in escrow.
func (s *Service) checkUnwind(ctx context.Context, w *domain.PendingWager) error {
	if w.Reserved.IsPositive() {
		if held := s.bankroll.ReservedBy(ctx, s.cfg.Address, w.Token); w.Reserved.GreaterThan(held) {
			return domain.ErrInsufficientReserved(fmt.Sprintf("wager reserved %s, game holds %s", w.Reserved, held))
		}
	}
	if escrow := s.book.BalanceOf(w.Token, s.cfg.Address); w.TotalStake().GreaterThan(escrow) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("stake %s exceeds escrow %s", w.TotalStake(), escrow))
	}
	return nil
}

// payoutCapacity is what the ledger will have available for this payout
// once the reservation is released and the played stake deposited.
func (s *Service) payoutCapacity(ctx context.Context, w *domain.PendingWager, staked domain.Amount) domain.Amount {
	reg, _ := s.bankroll.Game(ctx, s.cfg.Address)
	split := s.bankroll.QuoteDeposit(staked, reg.CreatorBps)
	return s.bankroll.AvailableBalance(ctx, w.Token).
		Add(w.Reserved).
		Add(split.Net).
		Add(split.Reinvested)
}

// settle moves funds for a resolved wager whose record is already gone.
// Depositing the played stake is the commit point: a failure before it is
// fully unwound and reported with committed false.
func (s *Service) settle(ctx context.Context, w *domain.PendingWager, result *domain.SettlementResult) (bool, error) {
	if w.Reserved.IsPositive() {
		if err := s.bankroll.ReleaseFunds(ctx, s.cfg.Address, w.Token, w.Reserved); err != nil {
			return false, fmt.Errorf("release reservation: %w", err)
		}
	}

	if err := s.depositStake(ctx, w.Token, result.Staked); err != nil {
		s.restoreReservation(ctx, w)
		return false, fmt.Errorf("deposit stake: %w", err)
	}

	if _, err := s.bankroll.AddPlayerReward(ctx, s.cfg.Address, w.Player, result.Staked); err != nil {
		s.logger.Warn("play reward not accrued", "player", w.Player, "wager", result.Staked, "error", err)
	}

	if result.Payout.IsPositive() {
		wrapped, err := s.bankroll.TransferPayout(ctx, s.cfg.Address, w.Player, result.Payout, w.Token)
		if err != nil {
			return true, fmt.Errorf("transfer payout: %w", err)
		}
		if wrapped {
			s.logger.Warn("payout delivered as wrapped native", "player", w.Player, "amount", result.Payout)
		}
	}

	if result.Refunded.IsPositive() {
		if err := s.returnStake(ctx, w.Player, w.Token, result.Refunded); err != nil {
			return true, fmt.Errorf("refund unplayed stake: %w", err)
		}
	}
	return true, nil
}

// depositStake forwards played stake from escrow into the ledger. A failed
// token deposit leaves no allowance behind.
func (s *Service) depositStake(ctx context.Context, token domain.Address, staked domain.Amount) error {
	if !staked.IsPositive() {
		return nil
	}
	if !token.IsNative() {
		if err := s.book.Approve(token, s.cfg.Address, s.bankroll.Address(), staked); err != nil {
			return fmt.Errorf("approve stake: %w", err)
		}
	}
	if _, err := s.bankroll.DepositWager(ctx, s.cfg.Address, token, staked); err != nil {
		if !token.IsNative() {
			if rerr := s.book.Approve(token, s.cfg.Address, s.bankroll.Address(), domain.Zero); rerr != nil {
				s.logger.Error("revoke stake allowance", "token", token, "error", rerr)
			}
		}
		return err
	}
	return nil
}

// restoreReservation takes back a reservation released for a wager that
// could not be settled.
func (s *Service) restoreReservation(ctx context.Context, w *domain.PendingWager) {
	if !w.Reserved.IsPositive() {
		return
	}
	if err := s.bankroll.ReserveFunds(ctx, s.cfg.Address, w.Token, w.Reserved); err != nil {
		s.logger.Error("restore reservation", "player", w.Player, "request_id", w.RequestID, "error", err)
	}
}

// restore puts a wager back after a failed settlement or refund.
func (s *Service) restore(w *domain.PendingWager) {
	s.pending[w.Player] = w
	s.byRequest[w.RequestID] = w.Player
}

// Refund returns a stuck wager once RefundDelayBlocks have passed since it
// was placed. The randomness fee is not returned. A game removed from the
// bankroll can still refund, since it keeps the right to release what it
// reserved.
func (s *Service) Refund(ctx context.Context, player domain.Address) (domain.PendingWager, error) {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return domain.PendingWager{}, err
	}
	defer release()

	w, ok := s.pending[player]
	if !ok {
		return domain.PendingWager{}, domain.ErrNoPendingWager(player)
	}
	var elapsed uint64
	if now := s.clock.BlockNumber(); now > w.CreatedBlock {
		elapsed = now - w.CreatedBlock
	}
	if elapsed < s.cfg.RefundDelayBlocks {
		return domain.PendingWager{}, domain.ErrTimeoutNotReached(elapsed, s.cfg.RefundDelayBlocks)
	}
	if err := s.checkUnwind(ctx, w); err != nil {
		return domain.PendingWager{}, err
	}

	delete(s.pending, player)
	delete(s.byRequest, w.RequestID)

	if w.Reserved.IsPositive() {
		if err := s.bankroll.ReleaseFunds(ctx, s.cfg.Address, w.Token, w.Reserved); err != nil {
			s.restore(w)
			s.logger.Error("release reservation on refund", "player", player, "error", err)
			return domain.PendingWager{}, domain.ErrInternal("release reservation", err)
		}
	}
	if err := s.returnStake(ctx, player, w.Token, w.TotalStake()); err != nil {
		s.restoreReservation(ctx, w)
		s.restore(w)
		s.logger.Error("return stake on refund", "player", player, "error", err)
		return domain.PendingWager{}, domain.ErrInternal("return stake", err)
	}

	s.emit(ctx, domain.NewWagerRefundedEvent(w, s.clock.Now()))
	s.logger.Info("wager refunded", "player", player, "request_id", w.RequestID, "blocks_elapsed", elapsed)
	return *w, nil
}
