package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/attaboy/bankroll/internal/domain"
)

type contextKey string

const (
	claimsKey  contextKey = "auth_claims"
	addressKey contextKey = "auth_address"
	keeperKey  contextKey = "auth_keeper"
)

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// AddressFromContext extracts the authenticated account address from request context.
func AddressFromContext(ctx context.Context) domain.Address {
	addr, _ := ctx.Value(addressKey).(domain.Address)
	return addr
}

// KeeperFromContext extracts the keeper token from request context.
func KeeperFromContext(ctx context.Context) *KeeperToken {
	tok, _ := ctx.Value(keeperKey).(*KeeperToken)
	return tok
}

// WithAddress returns ctx carrying addr as the authenticated account.
func WithAddress(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, addressKey, addr)
}

// AuthenticatePlayer returns middleware that validates player JWT tokens.
func AuthenticatePlayer(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmPlayer)
}

// AuthenticateAdmin returns middleware that validates admin JWT tokens.
func AuthenticateAdmin(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmAdmin)
}

// AuthenticateKeeper returns middleware that validates keeper tokens carrying scope.
func AuthenticateKeeper(mgr *KeeperAuthManager, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}
			tok, err := mgr.ValidateKeeperToken(raw)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}
			if !tok.HasScope(scope) {
				http.Error(w, `{"code":"FORBIDDEN","message":"missing scope `+scope+`"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keeperKey, tok)))
		})
	}
}

// RequireCapability returns middleware that admits admin roles granting c.
func RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"no auth context"}`, http.StatusUnauthorized)
				return
			}
			if !claims.Role.Can(c) {
				http.Error(w, `{"code":"FORBIDDEN","message":"role `+string(claims.Role)+` lacks `+string(c)+`"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticateRealm(jwtMgr *JWTManager, realm Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr, realm)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = WithAddress(ctx, claims.Address())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager, realm Realm) (*Claims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}
	return jwtMgr.ValidateTokenForRealm(raw, realm)
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization format")
	}
	return parts[1], nil
}
