package handler

import (
	"net/http"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/vault"
)

// VaultHandler serves liquidity providers.
type VaultHandler struct {
	vault *vault.Vault
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(v *vault.Vault) *VaultHandler {
	return &VaultHandler{vault: v}
}

// Pools handles GET /vault/pools.
func (h *VaultHandler) Pools(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.vault.Pools(r.Context()))
}

// Pool handles GET /vault/pools/{token}.
func (h *VaultHandler) Pool(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := h.vault.Pool(r.Context(), token)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"pool":           p,
		"reward_reserve": h.vault.RewardReserve(r.Context(), token),
	})
}

// Window handles GET /vault/window.
func (h *VaultHandler) Window(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.vault.RemainingLockup(r.Context()))
}

// Stake handles GET /vault/pools/{token}/stake for the caller.
func (h *VaultHandler) Stake(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	lp := auth.AddressFromContext(r.Context())
	stake, err := h.vault.Stake(r.Context(), token, lp)
	if err != nil {
		RespondError(w, err)
		return
	}
	value, err := h.vault.SharesValue(r.Context(), token, stake.Shares)
	if err != nil {
		RespondError(w, err)
		return
	}
	pending, err := h.vault.PendingRewards(r.Context(), token, lp)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := map[string]interface{}{
		"stake":           stake,
		"value":           value,
		"pending_rewards": pending,
	}
	if stake.Shares.IsPositive() {
		unlocks, err := h.vault.StakeUnlocksAt(r.Context(), token, lp)
		if err != nil {
			RespondError(w, err)
			return
		}
		resp["unlocks_at"] = unlocks
	}
	RespondJSON(w, http.StatusOK, resp)
}

// Deposit handles POST /vault/pools/{token}/deposit.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	var body struct {
		Amount domain.Amount `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	stake, err := h.vault.Deposit(r.Context(), auth.AddressFromContext(r.Context()), token, body.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, stake)
}

// Withdraw handles POST /vault/pools/{token}/withdraw.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	var body struct {
		Shares domain.Amount `json:"shares"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	amount, err := h.vault.Withdraw(r.Context(), auth.AddressFromContext(r.Context()), token, body.Shares)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"shares": body.Shares,
		"amount": amount,
	})
}

// Claim handles POST /vault/pools/{token}/claim.
func (h *VaultHandler) Claim(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	net, err := h.vault.ClaimRewards(r.Context(), auth.AddressFromContext(r.Context()), token)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"claimed": net})
}
