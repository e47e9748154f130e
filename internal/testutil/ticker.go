// ticker.go - Manually driven ticker for deterministic polling tests
package testutil

import (
	"sync"
	"time"
)

// ManualTicker is a ticker whose ticks are sent by the test.
type ManualTicker struct {
	ch       chan time.Time
	mu       sync.Mutex
	stops    int
	interval time.Duration
}

// C returns the tick channel.
func (t *ManualTicker) C() <-chan time.Time {
	return t.ch
}

// Stop records the call.
func (t *ManualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

// Stops returns how many times Stop was called.
func (t *ManualTicker) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Interval returns the interval the ticker was created with.
func (t *ManualTicker) Interval() time.Duration {
	return t.interval
}

// Tick delivers one tick. It reports false if nobody received it within a second,
// which means the poll loop has exited.
func (t *ManualTicker) Tick() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

// ManualClock hands out ManualTickers and remembers them in creation order.
type ManualClock struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

// NewTicker creates and records a ticker.
func (c *ManualClock) NewTicker(d time.Duration) *ManualTicker {
	t := &ManualTicker{ch: make(chan time.Time), interval: d}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tickers returns every ticker created so far.
func (c *ManualClock) Tickers() []*ManualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ManualTicker(nil), c.tickers...)
}

// Last returns the most recently created ticker, or nil.
func (c *ManualClock) Last() *ManualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}
