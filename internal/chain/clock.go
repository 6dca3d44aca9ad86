// Package chain provides the block height and wall clock that the settlement
// timeout and the vault withdrawal windows are measured against.
package chain

import (
	"sync"
	"time"
)

// DefaultBlockTime is the block interval assumed when none is configured.
const DefaultBlockTime = 12 * time.Second

// Clock reports the current time and block height.
type Clock interface {
	Now() time.Time
	BlockNumber() uint64
}

// SystemClock derives the block height from wall time since genesis.
type SystemClock struct {
	Genesis   time.Time
	BlockTime time.Duration
}

// NewSystemClock returns a clock whose block zero is genesis.
func NewSystemClock(genesis time.Time, blockTime time.Duration) SystemClock {
	if blockTime <= 0 {
		blockTime = DefaultBlockTime
	}
	return SystemClock{Genesis: genesis, BlockTime: blockTime}
}

func (c SystemClock) Now() time.Time { return time.Now().UTC() }

func (c SystemClock) BlockNumber() uint64 {
	elapsed := time.Since(c.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.BlockTime)
}

// ManualClock is advanced explicitly. Tests and simulations use it.
type ManualClock struct {
	mu        sync.Mutex
	now       time.Time
	block     uint64
	blockTime time.Duration
}

// NewManualClock starts a manual clock at start, block zero.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC(), blockTime: DefaultBlockTime}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// Advance moves wall time forward without mining blocks.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps wall time to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Mine produces n blocks, advancing wall time by one block interval each.
func (c *ManualClock) Mine(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block += n
	c.now = c.now.Add(time.Duration(n) * c.blockTime)
}
