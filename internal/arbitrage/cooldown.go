package arbitrage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// Cooldown suppresses repeated promotion of the same triangle within a time
// window. Admit is called only from the orchestrator's aggregation step.
type Cooldown struct {
	window time.Duration
	mu     sync.Mutex
	last   map[domain.TriangleKey]time.Time
	found  atomic.Int64
}

// NewCooldown creates a Cooldown with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[domain.TriangleKey]time.Time),
	}
}

// Admit reports whether key may be promoted at now. A key last promoted no
// more than window ago is suppressed; otherwise its timestamp is overwritten
// and the lifetime counter incremented.
func (c *Cooldown) Admit(key domain.TriangleKey, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) <= c.window {
		return false
	}
	c.last[key] = now
	c.found.Add(1)
	return true
}

// Found returns the number of opportunities promoted since start.
func (c *Cooldown) Found() int64 {
	return c.found.Load()
}

// Len returns the number of tracked triangles.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Prune drops entries whose window has elapsed. Dropping them does not
// change any Admit decision.
func (c *Cooldown) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ts := range c.last {
		if now.Sub(ts) > c.window {
			delete(c.last, k)
		}
	}
}
