package cache

import "time"

// Stats holds cache statistics.
type Stats struct {
	Hits           int64
	Misses         int64
	Size           int
	MemoryEstimate int64
	OldestEntry    time.Time
	NewestEntry    time.Time
}

// Stats returns a snapshot of the cache statistics. The memory estimate
// is approximate; values are sized by kind, not serialized.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   len(c.entries),
	}

	for _, e := range c.entries {
		s.MemoryEstimate += int64(len(e.Key)) + estimateSize(e.Value) + 64
		if s.OldestEntry.IsZero() || e.StoredAt.Before(s.OldestEntry) {
			s.OldestEntry = e.StoredAt
		}
		if e.StoredAt.After(s.NewestEntry) {
			s.NewestEntry = e.StoredAt
		}
	}

	return s
}

// HitRate returns hits/(hits+misses), or 0 when nothing was accessed.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// estimateSize roughly sizes a cached value in bytes.
func estimateSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	case bool:
		return 1
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return 8
	case map[string]any:
		var total int64
		for k, item := range val {
			total += int64(len(k)) + estimateSize(item)
		}
		return total
	case []any:
		var total int64
		for _, item := range val {
			total += estimateSize(item)
		}
		return total
	default:
		return 64
	}
}
