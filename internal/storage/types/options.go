package types

import (
	"fmt"
	"time"
)

// Priority indicates how urgently an operation should be persisted.
type Priority int

const (
	// PriorityNormal applies the optimistic update and queues the write.
	PriorityNormal Priority = iota

	// PriorityLow queues the write without an optimistic update.
	PriorityLow

	// PriorityHigh additionally requests an immediate queue drain.
	PriorityHigh
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParsePriority parses a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %s", s)
	}
}

// Options configures a single storage operation. Zero-valued fields take
// component-level defaults.
type Options struct {
	// TTL bounds how long the value stays in the cache layer.
	TTL time.Duration

	// Compress requests compression through the codec before the
	// physical write.
	Compress bool

	// Priority controls the optimistic-update and drain behavior.
	Priority Priority

	// Retries overrides the engine's default retry budget for this
	// operation. Zero means use the default.
	Retries int

	// Timeout bounds a single tier call. Zero means use the default.
	Timeout time.Duration
}
