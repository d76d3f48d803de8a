package cache

import (
	"context"
	"time"
)

// StartJanitor runs a background sweep that removes expired entries at
// the given interval. Lazy expiry on Get keeps the cache correct without
// it; the sweep only reclaims memory for entries nobody reads again.
// The sweep stops when ctx is cancelled.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SweepExpired()
			}
		}
	}()
}

// SweepExpired removes all expired entries. Returns the number removed.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.ExpiresAt) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}
