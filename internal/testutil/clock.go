package testutil

import (
	"sync"

	"github.com/roach88/tagstate/internal/protocol"
)

// BlockInterval is the number of seconds between consecutive test blocks.
const BlockInterval = 3

// Genesis is the timestamp of block 1 in tests: 2016-01-01T00:00:00.
const Genesis protocol.TimePointSec = 1451606400

// BlockClock produces consecutive block numbers and timestamps so the same
// scenario always yields byte-identical blocks.
//
// Thread-safety: all methods are safe for concurrent use.
type BlockClock struct {
	mu     sync.Mutex
	start  protocol.TimePointSec
	number uint32
}

// NewBlockClock returns a clock whose first block is 1 at Genesis.
func NewBlockClock() *BlockClock {
	return NewBlockClockAt(Genesis)
}

// NewBlockClockAt returns a clock whose first block is 1 at start.
func NewBlockClockAt(start protocol.TimePointSec) *BlockClock {
	return &BlockClock{start: start}
}

// Next builds the next block around ops.
func (c *BlockClock) Next(ops ...protocol.Operation) protocol.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.number++
	return protocol.Block{
		Number:     c.number,
		Timestamp:  c.timeOf(c.number),
		Operations: ops,
	}
}

// Skip advances the clock by seconds without producing blocks in between.
// The next block carries the later timestamp.
func (c *BlockClock) Skip(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.start.Add(seconds)
}

// Now returns the timestamp of the last block produced, or the start time.
func (c *BlockClock) Now() protocol.TimePointSec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeOf(c.number)
}

// Number returns the last block number produced.
func (c *BlockClock) Number() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.number
}

// Rewind makes the next block reuse number n+1, as after popping blocks.
func (c *BlockClock) Rewind(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.number = n
}

func (c *BlockClock) timeOf(n uint32) protocol.TimePointSec {
	if n == 0 {
		return c.start
	}
	return c.start.Add(int64(n-1) * BlockInterval)
}
