package randomness

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/guard"
)

const (
	randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"
	randomOrgCircuit  = "random.org"
)

// Source produces uniformly distributed 64-bit random words.
type Source interface {
	Words(ctx context.Context, n int) ([]domain.Word, error)
}

// CryptoSource draws words from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) Words(_ context.Context, n int) ([]domain.Word, error) {
	return csprngWords(n)
}

// RandomOrgSource provides true random words from RANDOM.ORG with CSPRNG
// fallback. A circuit breaker stops calling the API after repeated failures.
type RandomOrgSource struct {
	apiKey   string
	endpoint string
	logger   *slog.Logger
	client   *http.Client
	breaker  *guard.CircuitBreaker
}

// NewRandomOrgSource creates a new RANDOM.ORG source.
func NewRandomOrgSource(apiKey string, breaker *guard.CircuitBreaker, logger *slog.Logger) *RandomOrgSource {
	return &RandomOrgSource{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		logger:   logger,
		client:   &http.Client{Timeout: 5 * time.Second},
		breaker:  breaker,
	}
}

// Words returns n random words from RANDOM.ORG.
// Falls back to crypto/rand if the API is unavailable.
func (s *RandomOrgSource) Words(ctx context.Context, n int) ([]domain.Word, error) {
	if s.apiKey == "" {
		s.logger.Debug("random.org api key not set, using CSPRNG fallback")
		return csprngWords(n)
	}

	if result := s.breaker.Check(ctx, randomOrgCircuit); !result.Allowed {
		s.logger.Debug("random.org circuit open, using CSPRNG fallback", "reason", result.Reason)
		return csprngWords(n)
	}

	words, err := s.fetchBlobs(ctx, n)
	if err != nil {
		s.breaker.RecordFailure(randomOrgCircuit)
		s.logger.Warn("random.org unavailable, falling back to CSPRNG", "error", err)
		return csprngWords(n)
	}
	s.breaker.RecordSuccess(randomOrgCircuit)
	return words, nil
}

func (s *RandomOrgSource) fetchBlobs(ctx context.Context, n int) ([]domain.Word, error) {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "generateBlobs",
		"params": map[string]interface{}{
			"apiKey": s.apiKey,
			"n":      n,
			"size":   64,
			"format": "hex",
		},
		"id": 1,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var response struct {
		Result struct {
			Random struct {
				Data []string `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("api error: %s", response.Error.Message)
	}
	if len(response.Result.Random.Data) != n {
		return nil, fmt.Errorf("api returned %d blobs, want %d", len(response.Result.Random.Data), n)
	}

	words := make([]domain.Word, n)
	for i, blob := range response.Result.Random.Data {
		raw, err := hex.DecodeString(blob)
		if err != nil || len(raw) != 8 {
			return nil, fmt.Errorf("malformed blob %q", blob)
		}
		words[i] = binary.BigEndian.Uint64(raw)
	}
	return words, nil
}

// csprngWords generates cryptographically secure random words as fallback.
func csprngWords(n int) ([]domain.Word, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative word count %d", n)
	}
	buf := make([]byte, 8*n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("csprng: %w", err)
	}
	words := make([]domain.Word, n)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(buf[i*8:])
	}
	return words, nil
}
