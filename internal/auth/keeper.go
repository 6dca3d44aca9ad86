package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Keeper scopes.
const (
	ScopeDeliverRandomness = "randomness:deliver"
	ScopeSnapshot          = "ledger:snapshot"
	ScopeRefund            = "settlement:refund"
)

// KeeperToken is the payload of an HMAC-signed token held by automation
// (randomness relayers, snapshot cron, refund sweepers).
type KeeperToken struct {
	Sub    string   `json:"sub"`
	Scopes []string `json:"scopes"`
	Exp    int64    `json:"exp"`
	Iat    int64    `json:"iat"`
	Jti    string   `json:"jti"`
}

// HasScope reports whether the token grants scope.
func (t *KeeperToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// KeeperAuthManager handles HMAC-SHA256 scoped tokens for keepers.
type KeeperAuthManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewKeeperAuthManager creates a keeper auth manager issuing tokens valid for ttl.
func NewKeeperAuthManager(secret string, ttl time.Duration) *KeeperAuthManager {
	return &KeeperAuthManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateKeeperToken creates an HMAC-SHA256 scoped token.
// Format: base64(payload).base64(signature)
func (m *KeeperAuthManager) GenerateKeeperToken(keeperID string, scopes []string) (string, error) {
	if keeperID == "" {
		return "", fmt.Errorf("keeper id is required")
	}
	now := m.now()

	token := KeeperToken{
		Sub:    keeperID,
		Scopes: scopes,
		Exp:    now.Add(m.ttl).Unix(),
		Iat:    now.Unix(),
		Jti:    uuid.New().String(),
	}

	payloadJSON, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("marshal keeper token: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64 := base64.RawURLEncoding.EncodeToString(m.sign(payloadB64))

	return payloadB64 + "." + sigB64, nil
}

// ValidateKeeperToken verifies and decodes a keeper token.
func (m *KeeperAuthManager) ValidateKeeperToken(tokenString string) (*KeeperToken, error) {
	i := strings.LastIndexByte(tokenString, '.')
	if i <= 0 {
		return nil, fmt.Errorf("invalid keeper token format")
	}
	payloadB64, sigB64 := tokenString[:i], tokenString[i+1:]

	actualSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if !hmac.Equal(m.sign(payloadB64), actualSig) {
		return nil, fmt.Errorf("invalid signature")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var token KeeperToken
	if err := json.Unmarshal(payloadJSON, &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	if m.now().Unix() > token.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return &token, nil
}

func (m *KeeperAuthManager) sign(data string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
