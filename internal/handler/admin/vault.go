package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/handler"
	"github.com/attaboy/bankroll/internal/vault"
)

// VaultAdminHandler exposes the vault's owner operations.
type VaultAdminHandler struct {
	vault *vault.Vault
}

// NewVaultAdminHandler creates a new VaultAdminHandler.
func NewVaultAdminHandler(v *vault.Vault) *VaultAdminHandler {
	return &VaultAdminHandler{vault: v}
}

// AddPool handles POST /admin/vault/pools. The reward rate may be given
// directly or derived from an APY against the pool's expected TVL.
func (h *VaultAdminHandler) AddPool(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token      domain.Address `json:"token"`
		RewardRate domain.Amount  `json:"reward_rate"`
		APY        string         `json:"apy"`
		TVL        domain.Amount  `json:"tvl"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	rate := body.RewardRate
	if body.APY != "" {
		apy, err := vault.ParseAPY(body.APY)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation(err.Error()))
			return
		}
		rate = vault.RewardRateForAPY(body.TVL, apy)
	}
	token := domain.NormalizeAddress(string(body.Token))
	if body.Token == "" {
		token = domain.NativeToken
	}
	p, err := h.vault.AddPool(r.Context(), caller(r), token, rate)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, p)
}

// SetPoolActive handles PUT /admin/vault/pools/{token}/active.
func (h *VaultAdminHandler) SetPoolActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.vault.SetPoolActive(r.Context(), caller(r), param(r, "token"), body.Active); err != nil {
		handler.RespondError(w, err)
		return
	}
	h.respondPool(w, r)
}

// SetRewardRate handles PUT /admin/vault/pools/{token}/reward-rate.
func (h *VaultAdminHandler) SetRewardRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RewardRate domain.Amount `json:"reward_rate"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.vault.SetRewardRate(r.Context(), caller(r), param(r, "token"), body.RewardRate); err != nil {
		handler.RespondError(w, err)
		return
	}
	h.respondPool(w, r)
}

// DistributeRewards handles POST /admin/vault/pools/{token}/distribute.
func (h *VaultAdminHandler) DistributeRewards(w http.ResponseWriter, r *http.Request) {
	h.rewards(w, r, h.vault.DistributeRewards)
}

// FundRewards handles POST /admin/vault/pools/{token}/fund.
func (h *VaultAdminHandler) FundRewards(w http.ResponseWriter, r *http.Request) {
	h.rewards(w, r, h.vault.FundRewards)
}

// SetSchedule handles PUT /admin/vault/schedule.
func (h *VaultAdminHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EpochRate   string `json:"epoch_rate"`
		ClaimRate   string `json:"claim_rate"`
		ClaimWindow string `json:"claim_window"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	epoch, err1 := time.ParseDuration(body.EpochRate)
	claim, err2 := time.ParseDuration(body.ClaimRate)
	window, err3 := time.ParseDuration(body.ClaimWindow)
	if err1 != nil || err2 != nil || err3 != nil {
		handler.RespondError(w, domain.ErrValidation("schedule durations must look like 168h"))
		return
	}
	if err := h.vault.SetSchedule(r.Context(), caller(r), epoch, claim, window); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, h.vault.RemainingLockup(r.Context()))
}

// SetLockPeriod handles PUT /admin/vault/lock-period.
func (h *VaultAdminHandler) SetLockPeriod(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LockPeriod string `json:"lock_period"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	lock, err := time.ParseDuration(body.LockPeriod)
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid lock period"))
		return
	}
	if err := h.vault.SetLockPeriod(r.Context(), caller(r), lock); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

// SetPerformanceFee handles PUT /admin/vault/performance-fee.
func (h *VaultAdminHandler) SetPerformanceFee(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bps       int64          `json:"bps"`
		Recipient domain.Address `json:"recipient"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	recipient := domain.NormalizeAddress(string(body.Recipient))
	if err := h.vault.SetPerformanceFee(r.Context(), caller(r), body.Bps, recipient); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *VaultAdminHandler) rewards(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.Address, domain.Address, domain.Amount) error) {
	var body struct {
		Amount domain.Amount `json:"amount"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := op(r.Context(), caller(r), param(r, "token"), body.Amount); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token":          param(r, "token"),
		"reward_reserve": h.vault.RewardReserve(r.Context(), param(r, "token")),
	})
}

func (h *VaultAdminHandler) respondPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.vault.Pool(r.Context(), param(r, "token"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, p)
}
