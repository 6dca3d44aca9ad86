// Package settlement runs the two-phase wager protocol shared by every game:
// Play takes the stake and requests randomness, FulfillRandomWords settles
// it later, and Refund returns it if randomness never arrives.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
	"github.com/attaboy/bankroll/internal/oracle"
	"github.com/attaboy/bankroll/internal/randomness"
)

// Bankroll is the ledger surface a game uses.
type Bankroll interface {
	Address() domain.Address
	AvailableBalance(ctx context.Context, token domain.Address) domain.Amount
	IsValidWager(ctx context.Context, game, token domain.Address) bool
	IsSuspended(ctx context.Context, player domain.Address) (bool, time.Time)
	Game(ctx context.Context, game domain.Address) (domain.GameRegistration, bool)
	QuoteDeposit(amount domain.Amount, creatorBps int64) domain.FeeSplit
	ReserveFunds(ctx context.Context, game, token domain.Address, amount domain.Amount) error
	ReleaseFunds(ctx context.Context, game, token domain.Address, amount domain.Amount) error
	ReservedBy(ctx context.Context, game, token domain.Address) domain.Amount
	DepositWager(ctx context.Context, game, token domain.Address, amount domain.Amount) (domain.FeeSplit, error)
	AddPlayerReward(ctx context.Context, game, player domain.Address, wager domain.Amount) (domain.Amount, error)
	TransferPayout(ctx context.Context, game, player domain.Address, amount domain.Amount, token domain.Address) (bool, error)
}

// Config parameterizes one game service.
type Config struct {
	Address           domain.Address // game account: allowlisted in the ledger, holds stake in escrow
	RefundDelayBlocks uint64
	RiskFractionBps   int64
	MaxBets           uint32
	ReservePayout     bool
	Fees              FeeSchedule
}

// PlayRequest is a player's request to place a wager. Value is the native
// amount the player sends along: stake plus fee for native wagers, the fee
// alone for token wagers.
type PlayRequest struct {
	Player domain.Address   `json:"player"`
	Token  domain.Address   `json:"token"`
	Wager  domain.Amount    `json:"wager"`
	Value  domain.Amount    `json:"value"`
	Bet    domain.BetConfig `json:"bet"`
}

// Service is one game's settlement state machine. It holds at most one
// pending wager per player.
type Service struct {
	cfg      Config
	rules    Rules
	bankroll Bankroll
	gateway  randomness.Requester
	book     *asset.Book
	feed     oracle.PriceFeed
	clock    chain.Clock
	sink     domain.EventSink
	logger   *slog.Logger
	guard    *guard.Reentrancy

	pending   map[domain.Address]*domain.PendingWager
	byRequest map[domain.RequestID]domain.Address
}

// NewService creates the settlement service for one game.
func NewService(cfg Config, rules Rules, bankroll Bankroll, gateway randomness.Requester, book *asset.Book,
	feed oracle.PriceFeed, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) (*Service, error) {
	if err := domain.ValidateAddress(cfg.Address); err != nil {
		return nil, fmt.Errorf("game address: %w", err)
	}
	if err := domain.ValidateBps(cfg.RiskFractionBps, domain.BpsDenominator, "risk fraction"); err != nil {
		return nil, err
	}
	if cfg.MaxBets == 0 || cfg.MaxBets > randomness.MaxWordsPerRequest {
		return nil, domain.ErrValidation(fmt.Sprintf("max bets must be between 1 and %d", randomness.MaxWordsPerRequest))
	}
	if rules.RiskScale() <= 0 {
		return nil, domain.ErrValidation("risk scale must be positive")
	}
	return &Service{
		cfg:       cfg,
		rules:     rules,
		bankroll:  bankroll,
		gateway:   gateway,
		book:      book,
		feed:      feed,
		clock:     clock,
		sink:      sink,
		logger:    logger.With("game", rules.GameID()),
		guard:     guard.NewReentrancy("settlement:" + rules.GameID()),
		pending:   make(map[domain.Address]*domain.PendingWager),
		byRequest: make(map[domain.RequestID]domain.Address),
	}, nil
}

// Address is the game's account.
func (s *Service) Address() domain.Address { return s.cfg.Address }

// GameID names the game.
func (s *Service) GameID() string { return s.rules.GameID() }

// QuoteFee returns the randomness fee for count bets.
func (s *Service) QuoteFee(ctx context.Context, count uint32) (domain.Amount, error) {
	return s.cfg.Fees.Quote(ctx, s.feed, count)
}

// MaxWager is the largest total stake (wager × count) the bankroll accepts
// for token right now.
func (s *Service) MaxWager(ctx context.Context, token domain.Address) domain.Amount {
	available := s.bankroll.AvailableBalance(ctx, token)
	return domain.Div(domain.MulBps(available, s.cfg.RiskFractionBps), domain.NewAmount(s.rules.RiskScale()))
}

// Pending returns player's in-flight wager, if any.
func (s *Service) Pending(ctx context.Context, player domain.Address) (domain.PendingWager, bool) {
	defer s.guard.View(ctx)()
	w, ok := s.pending[player]
	if !ok {
		return domain.PendingWager{}, false
	}
	return *w, true
}

// PendingByRequest resolves a correlation id to its wager.
func (s *Service) PendingByRequest(ctx context.Context, id domain.RequestID) (domain.PendingWager, bool) {
	defer s.guard.View(ctx)()
	player, ok := s.byRequest[id]
	if !ok {
		return domain.PendingWager{}, false
	}
	return *s.pending[player], true
}

// State reports where player is in the wager lifecycle.
func (s *Service) State(ctx context.Context, player domain.Address) domain.WagerState {
	if _, ok := s.Pending(ctx, player); ok {
		return domain.WagerAwaitingRandomness
	}
	return domain.WagerIdle
}

// Play places a wager and requests one random word per bet.
func (s *Service) Play(ctx context.Context, req PlayRequest) (domain.PendingWager, error) {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return domain.PendingWager{}, err
	}
	defer release()

	if err := s.validatePlay(ctx, req); err != nil {
		return domain.PendingWager{}, err
	}

	fee, err := s.QuoteFee(ctx, req.Bet.Count)
	if err != nil {
		return domain.PendingWager{}, err
	}
	count := domain.NewAmount(int64(req.Bet.Count))
	stake := req.Wager.Mul(count)
	required := fee
	if req.Token.IsNative() {
		required = stake.Add(fee)
	}
	if req.Value.LessThan(required) {
		return domain.PendingWager{}, domain.ErrInsufficientFunds(fmt.Sprintf("sent %s, need %s (fee %s)", req.Value, required, fee))
	}

	if maxWager := s.MaxWager(ctx, req.Token); stake.GreaterThan(maxWager) {
		return domain.PendingWager{}, domain.ErrWagerAboveLimit(stake, maxWager)
	}

	if err := s.collect(ctx, req, stake); err != nil {
		return domain.PendingWager{}, err
	}

	reserve := domain.Zero
	if s.cfg.ReservePayout {
		reserve = s.rules.MaxPayout(req.Wager, req.Bet).Mul(count)
	}
	if reserve.IsPositive() {
		if err := s.bankroll.ReserveFunds(ctx, s.cfg.Address, req.Token, reserve); err != nil {
			s.returnCollected(ctx, req, stake)
			return domain.PendingWager{}, err
		}
	}

	id, err := s.gateway.RequestRandomWords(ctx, s, req.Bet.Count)
	if err != nil {
		if reserve.IsPositive() {
			if rerr := s.bankroll.ReleaseFunds(ctx, s.cfg.Address, req.Token, reserve); rerr != nil {
				s.logger.Error("release after failed randomness request", "player", req.Player, "error", rerr)
			}
		}
		s.returnCollected(ctx, req, stake)
		return domain.PendingWager{}, fmt.Errorf("request randomness: %w", err)
	}

	w := &domain.PendingWager{
		GameID:       s.rules.GameID(),
		Player:       req.Player,
		Token:        req.Token,
		Wager:        req.Wager,
		Bet:          req.Bet,
		RequestID:    id,
		CreatedBlock: s.clock.BlockNumber(),
		CreatedAt:    s.clock.Now(),
		Reserved:     reserve,
		Fee:          fee,
	}
	s.pending[req.Player] = w
	s.byRequest[id] = req.Player

	if fee.IsPositive() {
		if err := s.book.SendNative(ctx, s.cfg.Address, s.gateway.Address(), fee); err != nil {
			s.logger.Error("pay randomness fee", "request_id", id, "fee", fee, "error", err)
		}
	}
	if excess := req.Value.Sub(required); excess.IsPositive() {
		if _, err := s.book.PayNative(ctx, s.cfg.Address, req.Player, excess); err != nil {
			s.logger.Error("refund excess value", "player", req.Player, "excess", excess, "error", err)
		}
	}

	s.emit(ctx, domain.NewWagerPlacedEvent(w))
	s.logger.Info("wager placed",
		"player", req.Player,
		"token", req.Token,
		"wager", req.Wager,
		"count", req.Bet.Count,
		"request_id", id,
		"fee", fee,
	)
	return *w, nil
}

func (s *Service) validatePlay(ctx context.Context, req PlayRequest) error {
	if err := domain.ValidateAddress(req.Player); err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(req.Wager, "wager"); err != nil {
		return err
	}
	if err := domain.ValidateAmount(req.Value); err != nil {
		return err
	}
	if req.Bet.Count == 0 || req.Bet.Count > s.cfg.MaxBets {
		return domain.ErrValidation(fmt.Sprintf("bet count must be between 1 and %d, got %d", s.cfg.MaxBets, req.Bet.Count))
	}
	if req.Bet.StopGain.IsNegative() || req.Bet.StopLoss.IsNegative() {
		return domain.ErrValidation("stop gain and stop loss must not be negative")
	}
	if err := s.rules.Validate(req.Bet); err != nil {
		return err
	}
	if !s.bankroll.IsValidWager(ctx, s.cfg.Address, req.Token) {
		return domain.ErrUnsupportedToken(req.Token)
	}
	if w, ok := s.pending[req.Player]; ok {
		return &domain.AwaitingRandomnessError{Player: req.Player, RequestID: w.RequestID}
	}
	if suspended, until := s.bankroll.IsSuspended(ctx, req.Player); suspended {
		return domain.ErrSuspended(req.Player, until)
	}
	return nil
}

// collect moves the player's value and stake into escrow.
func (s *Service) collect(ctx context.Context, req PlayRequest, stake domain.Amount) error {
	if req.Value.IsPositive() {
		if err := s.book.SendNative(ctx, req.Player, s.cfg.Address, req.Value); err != nil {
			return fmt.Errorf("collect value: %w", err)
		}
	}
	if req.Token.IsNative() {
		return nil
	}
	if err := s.book.TransferFrom(ctx, req.Token, s.cfg.Address, req.Player, s.cfg.Address, stake); err != nil {
		s.returnNative(ctx, req.Player, req.Value)
		return fmt.Errorf("collect stake: %w", err)
	}
	return nil
}

// returnCollected undoes collect.
func (s *Service) returnCollected(ctx context.Context, req PlayRequest, stake domain.Amount) {
	if !req.Token.IsNative() {
		if err := s.book.Transfer(ctx, req.Token, s.cfg.Address, req.Player, stake); err != nil {
			s.logger.Error("return collected stake", "player", req.Player, "error", err)
		}
	}
	s.returnNative(ctx, req.Player, req.Value)
}

func (s *Service) returnNative(ctx context.Context, player domain.Address, amount domain.Amount) {
	if !amount.IsPositive() {
		return
	}
	if _, err := s.book.PayNative(ctx, s.cfg.Address, player, amount); err != nil {
		s.logger.Error("return collected value", "player", player, "error", err)
	}
}

// returnStake pays escrowed stake back to the player.
func (s *Service) returnStake(ctx context.Context, player, token domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		_, err := s.book.PayNative(ctx, s.cfg.Address, player, amount)
		return err
	}
	return s.book.Transfer(ctx, token, s.cfg.Address, player, amount)
}

func (s *Service) emit(ctx context.Context, draft domain.OutboxDraft) {
	if err := s.sink.Emit(ctx, draft); err != nil {
		s.logger.Error("emit settlement event failed", "event_type", draft.EventType, "error", err)
	}
}
