package handler

import (
	"log/slog"
	"net/http"

	"github.com/attaboy/bankroll/internal/asset"
	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
)

// DevHandler issues tokens and test balances. It is only mounted when the
// faucet is enabled, which config validation restricts to insecure mode.
type DevHandler struct {
	jwt    *auth.JWTManager
	keeper *auth.KeeperAuthManager
	book   *asset.Book
	logger *slog.Logger
}

// NewDevHandler creates a DevHandler.
func NewDevHandler(jwt *auth.JWTManager, keeper *auth.KeeperAuthManager, book *asset.Book, logger *slog.Logger) *DevHandler {
	return &DevHandler{jwt: jwt, keeper: keeper, book: book, logger: logger}
}

// IssueToken handles POST /dev/tokens.
func (h *DevHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Realm   auth.Realm     `json:"realm"`
		Address domain.Address `json:"address"`
		Role    auth.Role      `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	token, err := h.jwt.GenerateToken(body.Realm, body.Address, body.Role)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	h.logger.Warn("dev token issued", "realm", body.Realm, "address", body.Address, "role", body.Role)
	RespondJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// IssueKeeperToken handles POST /dev/keeper-tokens.
func (h *DevHandler) IssueKeeperToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keeper string   `json:"keeper"`
		Scopes []string `json:"scopes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	token, err := h.keeper.GenerateKeeperToken(body.Keeper, body.Scopes)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// Faucet handles POST /dev/faucet: credits the caller with test funds.
func (h *DevHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token  domain.Address `json:"token"`
		Amount domain.Amount  `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	token := domain.NativeToken
	if body.Token != "" {
		token = domain.NormalizeAddress(string(body.Token))
	}
	to := auth.AddressFromContext(r.Context())
	if err := domain.ValidatePositiveAmount(body.Amount, "faucet amount"); err != nil {
		RespondError(w, err)
		return
	}
	if err := h.book.Credit(token, to, body.Amount); err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Warn("faucet credit", "token", token, "to", to, "amount", body.Amount)
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"balance": h.book.BalanceOf(token, to),
	})
}
