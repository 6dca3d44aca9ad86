package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lpAddr     domain.Address = "0x00000000000000000000000000000000000000e2"
	playerAddr domain.Address = "0x00000000000000000000000000000000000000e1"
)

type testServer struct {
	router   chi.Router
	platform *Platform
	clock    *chain.ManualClock
	jwt      *auth.JWTManager
	keeper   *auth.KeeperAuthManager
	outbox   *repository.MemoryOutbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("ALLOW_INSECURE_DEFAULTS", "true")
	t.Setenv("FAUCET_ENABLED", "true")
	t.Setenv("PLAY_RATE_LIMIT", "3")
	cfg, err := infra.LoadConfig("testdata-missing.env")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := chain.NewManualClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	outbox := repository.NewMemoryOutbox()
	hub := infra.NewEventHub(cfg.HubBuffer, logger)
	t.Cleanup(func() { hub.Shutdown(context.Background()) })

	platform, err := BuildPlatform(context.Background(), cfg, clock, repository.FanoutSink{outbox, hub}, logger)
	require.NoError(t, err)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTAdminExpiry)
	keeperMgr := auth.NewKeeperAuthManager(cfg.KeeperSecret, cfg.KeeperTokenTTL)
	router := NewRouter(RouterDeps{
		Platform:        platform,
		Hub:             hub,
		JWTMgr:          jwtMgr,
		KeeperMgr:       keeperMgr,
		Logger:          logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		StreamKeepAlive: cfg.StreamKeepAlive,
		PlayRateLimit:   cfg.PlayRateLimit,
		PlayRateWindow:  cfg.PlayRateWindow,
		PlayKeyTTL:      cfg.PlayIdempotencyTTL,
		HealthTimeout:   cfg.DBPingTimeout,
		FaucetEnabled:   cfg.FaucetEnabled,
	})
	return &testServer{router: router, platform: platform, clock: clock, jwt: jwtMgr, keeper: keeperMgr, outbox: outbox}
}

func (s *testServer) playerToken(t *testing.T, addr domain.Address) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(auth.RealmPlayer, addr, "")
	require.NoError(t, err)
	return tok
}

func (s *testServer) adminToken(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(auth.RealmAdmin, s.platform.Bankroll.Owner(), role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) keeperToken(t *testing.T, scopes ...string) string {
	t.Helper()
	tok, err := s.keeper.GenerateKeeperToken("relayer-1", scopes)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// fund credits addr through the faucet.
func (s *testServer) fund(t *testing.T, addr domain.Address, amount domain.Amount) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/dev/faucet", s.playerToken(t, addr), map[string]interface{}{"amount": amount})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// seedLiquidity stakes 100 native through the vault.
func (s *testServer) seedLiquidity(t *testing.T) {
	t.Helper()
	amount := domain.Units(100, 18)
	s.fund(t, lpAddr, amount)
	w := s.do(t, http.MethodPost, "/vault/pools/"+string(domain.NativeToken)+"/deposit", s.playerToken(t, lpAddr),
		map[string]interface{}{"amount": amount})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func playBody() map[string]interface{} {
	return map[string]interface{}{
		"wager": domain.Units(1, 17),
		"value": domain.Units(1, 18),
		"bet":   map[string]interface{}{"count": 1},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListGames(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/games", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var games []map[string]string
	decode(t, w, &games)
	require.Len(t, games, 1)
	assert.Equal(t, "coinflip", games[0]["game_id"])
}

func TestPublicVaultPoolIsNotShadowedByStakeRoutes(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/vault/pools/"+string(domain.NativeToken), "", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/vault/pools/"+string(domain.NativeToken)+"/stake", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlayLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.seedLiquidity(t)
	s.fund(t, playerAddr, domain.Units(10, 18))
	player := s.playerToken(t, playerAddr)

	t.Run("fee quote", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/games/coinflip/fee?count=1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		decode(t, w, &body)
		assert.NotEmpty(t, body["fee"])
	})

	t.Run("no pending wager before play", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/games/coinflip/pending", player, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "NO_PENDING_WAGER")
	})

	t.Run("play is accepted", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody(), "Idempotency-Key", "k-1")
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		var wager domain.PendingWager
		decode(t, w, &wager)
		assert.Equal(t, playerAddr, wager.Player)
		assert.NotEmpty(t, wager.RequestID)
	})

	t.Run("replayed idempotency key is blocked", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody(), "Idempotency-Key", "k-1")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_BLOCKED")
	})

	t.Run("second play waits for randomness", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody(), "Idempotency-Key", "k-2")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "AWAITING_RANDOMNESS")
	})

	t.Run("early refund is refused", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/games/coinflip/refund", player, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "TIMEOUT_NOT_REACHED")
	})

	t.Run("keeper delivers due randomness", func(t *testing.T) {
		keeper := s.keeperToken(t, auth.ScopeDeliverRandomness)

		w := s.do(t, http.MethodGet, "/keeper/randomness/pending", keeper, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var pending []map[string]interface{}
		decode(t, w, &pending)
		assert.Len(t, pending, 1)

		s.clock.Advance(time.Minute)
		w = s.do(t, http.MethodPost, "/keeper/randomness/deliver-due", keeper, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]int
		decode(t, w, &body)
		assert.Equal(t, 1, body["delivered"])
	})

	t.Run("wager settled", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/games/coinflip/pending", player, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotEmpty(t, s.outbox.ByType(domain.EventWagerSettled))
	})
}

func TestPlayRateLimited(t *testing.T) {
	s := newTestServer(t)
	player := s.playerToken(t, playerAddr)

	// The bankroll is empty so every play fails, but each still counts.
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody())
		assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
	}
	w := s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUnknownGame(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/games/dice/fee", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeeperRoutesRequireScope(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/keeper/randomness/deliver-due", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/keeper/randomness/deliver-due", s.keeperToken(t, auth.ScopeSnapshot), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/keeper/randomness/deliver-due", s.playerToken(t, playerAddr), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/keeper/snapshot", s.keeperToken(t, auth.ScopeSnapshot), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("player token is rejected", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/admin/audit", s.playerToken(t, playerAddr), nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("viewer reads the audit", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/admin/audit", s.adminToken(t, auth.RoleViewer), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var report map[string]interface{}
		decode(t, w, &report)
		assert.Equal(t, true, report["all_passed"])
	})

	t.Run("viewer cannot write", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/admin/vault/performance-fee", s.adminToken(t, auth.RoleViewer),
			map[string]interface{}{"bps": 500})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("operator cannot execute", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/bankroll/execute", s.adminToken(t, auth.RoleOperator),
			map[string]interface{}{"to": playerAddr, "value": "0"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("operator reads a registered game", func(t *testing.T) {
		game := s.platform.Games[0].Address()
		w := s.do(t, http.MethodGet, "/admin/games/"+string(game), s.adminToken(t, auth.RoleOperator), nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("operator cannot move bankroll funds", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/bankroll/fees/"+string(domain.NativeToken)+"/sweep", s.adminToken(t, auth.RoleOperator), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("treasurer sweeps fees but cannot touch the vault", func(t *testing.T) {
		s.seedLiquidity(t)
		treasurer := s.adminToken(t, auth.RoleTreasurer)

		w := s.do(t, http.MethodPost, "/admin/bankroll/fees/"+string(domain.NativeToken)+"/sweep", treasurer, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPut, "/admin/vault/performance-fee", treasurer, map[string]interface{}{"bps": 500})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestSuspendedPlayerCannotPlay(t *testing.T) {
	s := newTestServer(t)
	s.seedLiquidity(t)
	s.fund(t, playerAddr, domain.Units(10, 18))
	player := s.playerToken(t, playerAddr)

	w := s.do(t, http.MethodPost, "/me/suspension", player, map[string]string{"duration": "24h"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/games/coinflip/play", player, playBody())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PLAYER_SUSPENDED")

	w = s.do(t, http.MethodDelete, "/me/suspension", player, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.clock.Advance(25 * time.Hour)
	w = s.do(t, http.MethodDelete, "/me/suspension", player, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
