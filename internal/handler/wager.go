package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
	"github.com/attaboy/bankroll/internal/randomness"
	"github.com/attaboy/bankroll/internal/settlement"
	"github.com/go-chi/chi/v5"
)

// GameInfo describes a game for listing endpoints.
type GameInfo struct {
	GameID  string         `json:"game_id"`
	Address domain.Address `json:"address"`
}

// PlayBody is the request body for POST /games/{gameID}/play.
type PlayBody struct {
	Token domain.Address   `json:"token"`
	Wager domain.Amount    `json:"wager"`
	Value domain.Amount    `json:"value"`
	Bet   domain.BetConfig `json:"bet"`
}

// WagerHandler exposes the two-phase wager flow of every registered game.
type WagerHandler struct {
	games   map[string]*settlement.Service
	limiter *guard.RateLimiter
	idem    *guard.IdempotencyGuard
	logger  *slog.Logger
}

// NewWagerHandler creates a WagerHandler over games.
func NewWagerHandler(games []*settlement.Service, limiter *guard.RateLimiter, idem *guard.IdempotencyGuard, logger *slog.Logger) *WagerHandler {
	byID := make(map[string]*settlement.Service, len(games))
	for _, g := range games {
		byID[g.GameID()] = g
	}
	return &WagerHandler{games: byID, limiter: limiter, idem: idem, logger: logger}
}

// ListGames handles GET /games.
func (h *WagerHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	out := make([]GameInfo, 0, len(h.games))
	for id, g := range h.games {
		out = append(out, GameInfo{GameID: id, Address: g.Address()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	RespondJSON(w, http.StatusOK, out)
}

// QuoteFee handles GET /games/{gameID}/fee?count=N.
func (h *WagerHandler) QuoteFee(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r)
	if !ok {
		return
	}
	count, err := uintQuery(r, "count", 1, randomness.MaxWordsPerRequest)
	if err != nil {
		RespondError(w, err)
		return
	}
	fee, err := game.QuoteFee(r.Context(), uint32(count))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"count": count,
		"fee":   fee,
	})
}

// MaxWager handles GET /games/{gameID}/max-wager?token=.
func (h *WagerHandler) MaxWager(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r)
	if !ok {
		return
	}
	token, err := tokenQuery(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"max_wager": game.MaxWager(r.Context(), token),
	})
}

// Play handles POST /games/{gameID}/play. Requests are rate limited per
// player and deduplicated by the Idempotency-Key header.
func (h *WagerHandler) Play(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r)
	if !ok {
		return
	}
	player := auth.AddressFromContext(r.Context())

	if res := h.limiter.Check(r.Context(), string(player)); !res.Allowed {
		respondGuard(w, http.StatusTooManyRequests, res)
		return
	}

	idemKey := ""
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		idemKey = string(player) + ":" + key
	}
	if res := h.idem.Check(r.Context(), idemKey); !res.Allowed {
		respondGuard(w, http.StatusConflict, res)
		return
	}

	var body PlayBody
	if !decodeBody(w, r, &body) {
		h.idem.Remove(idemKey)
		return
	}
	if body.Token == "" {
		body.Token = domain.NativeToken
	}

	wager, err := game.Play(r.Context(), settlement.PlayRequest{
		Player: player,
		Token:  domain.NormalizeAddress(string(body.Token)),
		Wager:  body.Wager,
		Value:  body.Value,
		Bet:    body.Bet,
	})
	if err != nil {
		h.idem.Remove(idemKey)
		h.logger.Debug("play rejected", "player", player, "game", game.GameID(), "error", err)
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, wager)
}

// Pending handles GET /games/{gameID}/pending.
func (h *WagerHandler) Pending(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r)
	if !ok {
		return
	}
	player := auth.AddressFromContext(r.Context())
	wager, ok := game.Pending(r.Context(), player)
	if !ok {
		RespondError(w, domain.ErrNoPendingWager(player))
		return
	}
	RespondJSON(w, http.StatusOK, wager)
}

// Refund handles POST /games/{gameID}/refund for the caller's own wager.
func (h *WagerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.refund(w, r, auth.AddressFromContext(r.Context()))
}

// RefundFor handles POST /keeper/games/{gameID}/refund/{player}.
func (h *WagerHandler) RefundFor(w http.ResponseWriter, r *http.Request) {
	player, err := addressParam(r, "player")
	if err != nil {
		RespondError(w, err)
		return
	}
	h.refund(w, r, player)
}

func (h *WagerHandler) refund(w http.ResponseWriter, r *http.Request, player domain.Address) {
	game, ok := h.game(w, r)
	if !ok {
		return
	}
	wager, err := game.Refund(r.Context(), player)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"refunded": wager.TotalStake(),
		"wager":    wager,
	})
}

func (h *WagerHandler) game(w http.ResponseWriter, r *http.Request) (*settlement.Service, bool) {
	id := chi.URLParam(r, "gameID")
	g, ok := h.games[id]
	if !ok {
		RespondError(w, domain.ErrNotFound("game", id))
		return nil, false
	}
	return g, true
}

func respondGuard(w http.ResponseWriter, status int, res domain.GuardResult) {
	RespondJSON(w, status, map[string]string{
		"code":    "REQUEST_BLOCKED",
		"message": res.Reason,
		"guard":   res.Guard,
	})
}
