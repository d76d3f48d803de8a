// Package health derives an advisory health level from operation queue
// utilization. The level never gates enqueue; it only informs callers.
package health

import (
	"sync"

	"github.com/xtxerr/strata/internal/storage/config"
)

// Level represents the current health level.
type Level int

const (
	// LevelHealthy - queue utilization is comfortable.
	LevelHealthy Level = iota

	// LevelDegraded - the queue is filling faster than it drains.
	LevelDegraded

	// LevelUnhealthy - the queue is full; new work is being rejected.
	LevelUnhealthy
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelHealthy:
		return "healthy"
	case LevelDegraded:
		return "degraded"
	case LevelUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Controller computes health levels with hysteresis so a queue hovering
// around a threshold does not flap between levels.
type Controller struct {
	mu sync.Mutex

	degraded   float64
	unhealthy  float64
	hysteresis float64

	last  Level
	stats Stats
}

// Stats holds controller statistics.
type Stats struct {
	LevelChanges   int64
	DegradedCount  int64
	UnhealthyCount int64
}

// New creates a controller from health configuration.
func New(cfg config.HealthConfig) *Controller {
	return &Controller{
		degraded:   cfg.Degraded,
		unhealthy:  cfg.Unhealthy,
		hysteresis: cfg.Hysteresis,
	}
}

// Evaluate updates and returns the level for the given usage ratio.
func (c *Controller) Evaluate(usage float64) Level {
	c.mu.Lock()
	defer c.mu.Unlock()

	newLevel := c.determineLevel(usage)
	if newLevel != c.last {
		c.last = newLevel
		c.stats.LevelChanges++
		switch newLevel {
		case LevelDegraded:
			c.stats.DegradedCount++
		case LevelUnhealthy:
			c.stats.UnhealthyCount++
		}
	}

	return newLevel
}

// determineLevel applies thresholds going up and hysteresis going down.
// Caller must hold c.mu.
func (c *Controller) determineLevel(usage float64) Level {
	if usage >= c.unhealthy {
		return LevelUnhealthy
	}
	if usage >= c.degraded {
		return LevelDegraded
	}

	switch c.last {
	case LevelUnhealthy:
		if usage < c.unhealthy-c.hysteresis {
			return LevelDegraded
		}
		return LevelUnhealthy
	case LevelDegraded:
		if usage < c.degraded-c.hysteresis {
			return LevelHealthy
		}
		return LevelDegraded
	default:
		return LevelHealthy
	}
}

// CurrentLevel returns the last evaluated level.
func (c *Controller) CurrentLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stats returns controller statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
