package handler

import (
	"net/http"
	"time"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/ledger"
)

// SuspendBody carries a duration such as "72h".
type SuspendBody struct {
	Duration string `json:"duration"`
}

// PlayerHandler serves the caller's own account: balances, self-exclusion
// and play rewards.
type PlayerHandler struct {
	bankroll *ledger.Bankroll
	book     *asset.Book
}

// NewPlayerHandler creates a PlayerHandler.
func NewPlayerHandler(bankroll *ledger.Bankroll, book *asset.Book) *PlayerHandler {
	return &PlayerHandler{bankroll: bankroll, book: book}
}

// Balance handles GET /me/balance?token=.
func (h *PlayerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	token, err := tokenQuery(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	player := auth.AddressFromContext(r.Context())
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"address": player,
		"token":   token,
		"balance": h.book.BalanceOf(token, player),
	})
}

// Approve handles POST /me/allowances so a game or the vault can pull tokens.
func (h *PlayerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token   domain.Address `json:"token"`
		Spender domain.Address `json:"spender"`
		Amount  domain.Amount  `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	owner := auth.AddressFromContext(r.Context())
	token := domain.NormalizeAddress(string(body.Token))
	spender := domain.NormalizeAddress(string(body.Spender))
	if err := domain.ValidateAddress(spender); err != nil {
		RespondError(w, err)
		return
	}
	if err := h.book.Approve(token, owner, spender, body.Amount); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"spender":   spender,
		"allowance": h.book.Allowance(token, owner, spender),
	})
}

// Suspension handles GET /me/suspension.
func (h *PlayerHandler) Suspension(w http.ResponseWriter, r *http.Request) {
	player := auth.AddressFromContext(r.Context())
	suspended, until := h.bankroll.IsSuspended(r.Context(), player)
	resp := map[string]interface{}{
		"player":    player,
		"suspended": suspended,
	}
	if !until.IsZero() {
		resp["until"] = until
		resp["permanent"] = domain.IsPermanent(until)
	}
	RespondJSON(w, http.StatusOK, resp)
}

// Suspend handles POST /me/suspension.
func (h *PlayerHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDuration(w, r)
	if !ok {
		return
	}
	s, err := h.bankroll.Suspend(r.Context(), auth.AddressFromContext(r.Context()), d)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, s)
}

// ExtendSuspension handles POST /me/suspension/extend.
func (h *PlayerHandler) ExtendSuspension(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDuration(w, r)
	if !ok {
		return
	}
	s, err := h.bankroll.IncreaseSuspensionTime(r.Context(), auth.AddressFromContext(r.Context()), d)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, s)
}

// Ban handles POST /me/suspension/permanent.
func (h *PlayerHandler) Ban(w http.ResponseWriter, r *http.Request) {
	s, err := h.bankroll.PermanentlyBan(r.Context(), auth.AddressFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, s)
}

// LiftSuspension handles DELETE /me/suspension.
func (h *PlayerHandler) LiftSuspension(w http.ResponseWriter, r *http.Request) {
	if err := h.bankroll.LiftSuspension(r.Context(), auth.AddressFromContext(r.Context())); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// Rewards handles GET /me/rewards.
func (h *PlayerHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	player := auth.AddressFromContext(r.Context())
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"player":  player,
		"balance": h.bankroll.RewardBalance(r.Context(), player),
	})
}

// ClaimRewards handles POST /me/rewards/claim.
func (h *PlayerHandler) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	claimed, err := h.bankroll.ClaimRewards(r.Context(), auth.AddressFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"claimed": claimed})
}

func parseDuration(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	var body SuspendBody
	if !decodeBody(w, r, &body) {
		return 0, false
	}
	d, err := time.ParseDuration(body.Duration)
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid duration "+body.Duration))
		return 0, false
	}
	return d, true
}
