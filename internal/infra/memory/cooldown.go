package memory

import (
	"context"
	"sync"
	"time"
)

// Cooldown allows max calls per key within a fixed window.
type Cooldown struct {
	max    int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]*cooldownWindow
}

type cooldownWindow struct {
	count     int
	expiresAt time.Time
}

func NewCooldown(max int, window time.Duration) *Cooldown {
	return NewCooldownWithClock(max, window, time.Now)
}

// NewCooldownWithClock is test-only for deterministic timestamps.
func NewCooldownWithClock(max int, window time.Duration, clock func() time.Time) *Cooldown {
	if max <= 0 {
		max = 1
	}
	return &Cooldown{
		max:     max,
		window:  window,
		clock:   clock,
		windows: make(map[string]*cooldownWindow),
	}
}

func (c *Cooldown) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || !w.expiresAt.After(now) {
		w = &cooldownWindow{expiresAt: now.Add(c.window)}
		c.windows[key] = w
		c.evictLocked(now)
	}
	w.count++
	if w.count > c.max {
		return false, w.expiresAt.Sub(now), nil
	}
	return true, 0, nil
}

func (c *Cooldown) evictLocked(now time.Time) {
	for key, w := range c.windows {
		if !w.expiresAt.After(now) {
			delete(c.windows, key)
		}
	}
}
