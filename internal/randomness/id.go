package randomness

import (
	"math/rand"
	"sync"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/oklog/ulid/v2"
)

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// NewRequestID returns a lexically sortable, unique correlation id.
func NewRequestID(at time.Time) domain.RequestID {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return domain.RequestID(ulid.MustNew(ulid.Timestamp(at), ulidEntropy).String())
}
