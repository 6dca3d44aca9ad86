//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
)

// PlayerToken issues a player-realm token for addr.
func (env *TestEnv) PlayerToken(addr domain.Address) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmPlayer, addr, "")
	if err != nil {
		env.t.Fatalf("PlayerToken: %v", err)
	}
	return token
}

// AdminToken issues an admin-realm token for the owner with role.
func (env *TestEnv) AdminToken(role auth.Role) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, env.Platform.Bankroll.Owner(), role)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return token
}

// KeeperToken issues a keeper token carrying scopes.
func (env *TestEnv) KeeperToken(scopes ...string) string {
	env.t.Helper()
	token, err := env.KeeperMgr.GenerateKeeperToken("integration-keeper", scopes)
	if err != nil {
		env.t.Fatalf("KeeperToken: %v", err)
	}
	return token
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	req, err := http.NewRequest("POST", env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("POST %s: new request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("GET", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: new request: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// Fund credits addr with amount of native through the dev faucet.
func (env *TestEnv) Fund(addr domain.Address, amount domain.Amount) {
	env.t.Helper()
	resp := env.POST("/dev/faucet", map[string]interface{}{"amount": amount}, env.PlayerToken(addr))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Fund: expected 200, got %d", resp.StatusCode)
	}
}

// Stake funds lp and deposits amount of native into the vault.
func (env *TestEnv) Stake(lp domain.Address, amount domain.Amount) {
	env.t.Helper()
	env.Fund(lp, amount)
	resp := env.POST("/vault/pools/"+string(domain.NativeToken)+"/deposit",
		map[string]interface{}{"amount": amount}, env.PlayerToken(lp))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("Stake: expected 201, got %d", resp.StatusCode)
	}
}
