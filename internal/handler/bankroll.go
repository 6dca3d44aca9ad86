package handler

import (
	"net/http"

	"github.com/attaboy/bankroll/internal/ledger"
)

// BankrollHandler serves public views of the shared bankroll.
type BankrollHandler struct {
	bankroll *ledger.Bankroll
}

// NewBankrollHandler creates a BankrollHandler.
func NewBankrollHandler(bankroll *ledger.Bankroll) *BankrollHandler {
	return &BankrollHandler{bankroll: bankroll}
}

// Pools handles GET /bankroll/pools.
func (h *BankrollHandler) Pools(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.bankroll.Snapshot(r.Context()))
}

// Pool handles GET /bankroll/pools/{token}.
func (h *BankrollHandler) Pool(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, h.bankroll.PoolState(r.Context(), token))
}
