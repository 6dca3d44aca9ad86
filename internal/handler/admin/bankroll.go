package admin

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/handler"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/go-chi/chi/v5"
)

// BankrollAdminHandler exposes the bankroll's owner operations. The ledger
// itself checks that the authenticated admin address holds the right role.
type BankrollAdminHandler struct {
	bankroll *ledger.Bankroll
	logger   *slog.Logger
}

// NewBankrollAdminHandler creates a new BankrollAdminHandler.
func NewBankrollAdminHandler(bankroll *ledger.Bankroll, logger *slog.Logger) *BankrollAdminHandler {
	return &BankrollAdminHandler{bankroll: bankroll, logger: logger}
}

// RegisterGame handles POST /admin/games.
func (h *BankrollAdminHandler) RegisterGame(w http.ResponseWriter, r *http.Request) {
	var reg domain.GameRegistration
	if err := handler.DecodeJSON(r, &reg); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	reg.Game = domain.NormalizeAddress(string(reg.Game))
	if reg.Creator != "" {
		reg.Creator = domain.NormalizeAddress(string(reg.Creator))
	}
	if err := h.bankroll.RegisterGame(r.Context(), caller(r), reg); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, reg)
}

// GetGame handles GET /admin/games/{game}.
func (h *BankrollAdminHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game := param(r, "game")
	reg, ok := h.bankroll.Game(r.Context(), game)
	if !ok {
		handler.RespondError(w, domain.ErrNotFound("game", string(game)))
		return
	}
	handler.RespondJSON(w, http.StatusOK, reg)
}

// RemoveGame handles DELETE /admin/games/{game}.
func (h *BankrollAdminHandler) RemoveGame(w http.ResponseWriter, r *http.Request) {
	if err := h.bankroll.RemoveGame(r.Context(), caller(r), param(r, "game")); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

// SetTokenEnabled handles PUT /admin/games/{game}/tokens/{token}.
func (h *BankrollAdminHandler) SetTokenEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	game, token := param(r, "game"), param(r, "token")
	if err := h.bankroll.SetTokenEnabled(r.Context(), caller(r), game, token, body.Enabled); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"game":    game,
		"token":   token,
		"enabled": h.bankroll.IsValidWager(r.Context(), game, token),
	})
}

// Withdraw handles POST /admin/bankroll/withdraw.
func (h *BankrollAdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token     domain.Address `json:"token"`
		Recipient domain.Address `json:"recipient"`
		Amount    domain.Amount  `json:"amount"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	token := domain.NormalizeAddress(string(body.Token))
	if body.Token == "" {
		token = domain.NativeToken
	}
	recipient := domain.NormalizeAddress(string(body.Recipient))
	if err := domain.ValidateAddress(recipient); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.bankroll.WithdrawBankroll(r.Context(), caller(r), recipient, token, body.Amount); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, h.bankroll.PoolState(r.Context(), token))
}

// Fees handles GET /admin/bankroll/fees/{token}.
func (h *BankrollAdminHandler) Fees(w http.ResponseWriter, r *http.Request) {
	treasury, creators := h.bankroll.FeesAccrued(r.Context(), param(r, "token"))
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"treasury": treasury,
		"creators": creators,
	})
}

// SweepFees handles POST /admin/bankroll/fees/{token}/sweep.
func (h *BankrollAdminHandler) SweepFees(w http.ResponseWriter, r *http.Request) {
	token := param(r, "token")
	swept, err := h.bankroll.SweepFees(r.Context(), caller(r), token)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"swept": swept,
	})
}

// Execute handles POST /admin/bankroll/execute. Data is hex encoded.
func (h *BankrollAdminHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To    domain.Address `json:"to"`
		Value domain.Amount  `json:"value"`
		Data  string         `json:"data"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	data, err := hex.DecodeString(strings.TrimPrefix(body.Data, "0x"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("data must be hex"))
		return
	}
	result, err := h.bankroll.Execute(r.Context(), caller(r), ledger.Call{
		To:    domain.NormalizeAddress(string(body.To)),
		Value: body.Value,
		Data:  data,
	})
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	h.logger.Warn("admin execute", "admin", caller(r), "to", body.To, "success", result.Success)
	handler.RespondJSON(w, http.StatusOK, result)
}

// Audit handles GET /admin/audit.
func (h *BankrollAdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report := h.bankroll.Audit(r.Context())
	status := http.StatusOK
	if !report.AllPassed {
		status = http.StatusConflict
	}
	handler.RespondJSON(w, status, report)
}

// Suspension handles GET /admin/players/{player}/suspension.
func (h *BankrollAdminHandler) Suspension(w http.ResponseWriter, r *http.Request) {
	s, err := h.bankroll.Suspension(r.Context(), param(r, "player"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, s)
}

func caller(r *http.Request) domain.Address {
	return auth.AddressFromContext(r.Context())
}

func param(r *http.Request, name string) domain.Address {
	return domain.NormalizeAddress(chi.URLParam(r, name))
}
