package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports:
// 2023-11-14T22:13:20Z, 1_700_000_000_000 ms since the Unix epoch.
var Epoch = time.UnixMilli(1_700_000_000_000).UTC()

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading.
//
// Event timestamps and manifest createdAt values taken from it are the same
// on every run, so sealed segments and projections can be compared against
// golden files.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	ticks int64
	step  time.Duration
}

// NewDeterministicClock creates a clock whose first reading is Epoch and
// which advances by one millisecond per reading.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: time.Millisecond}
}

// NewSteppingClock creates a clock that advances by step per reading.
func NewSteppingClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{step: step}
}

// Now returns the current reading and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Peek returns the next reading without advancing.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(time.Duration(c.ticks) * c.step)
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
