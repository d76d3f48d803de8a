package types

import "fmt"

// Tier represents one physical storage backend in the fallback chain.
// Tiers are ordered fastest-first: memory is the highest tier, archive
// the lowest.
type Tier int

const (
	// TierMemory is the in-process key-value store.
	TierMemory Tier = iota

	// TierLocal is the persistent local key-value store.
	TierLocal

	// TierStructured is the larger, indexed on-device database.
	TierStructured

	// TierRemote is the network-backed, namespace-scoped store.
	TierRemote

	// TierArchive is the slowest tier, backed by columnar segment files.
	TierArchive
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierLocal:
		return "local"
	case TierStructured:
		return "structured"
	case TierRemote:
		return "remote"
	case TierArchive:
		return "archive"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// DefaultPriority returns the default lookup priority for this tier.
// Higher values are probed first.
func (t Tier) DefaultPriority() int {
	switch t {
	case TierMemory:
		return 50
	case TierLocal:
		return 40
	case TierStructured:
		return 30
	case TierRemote:
		return 20
	case TierArchive:
		return 10
	default:
		return 0
	}
}

// Higher returns the adjacent faster tier.
// Returns the same tier if it is already the highest.
func (t Tier) Higher() Tier {
	switch t {
	case TierMemory:
		return TierMemory
	case TierLocal:
		return TierMemory
	case TierStructured:
		return TierLocal
	case TierRemote:
		return TierStructured
	case TierArchive:
		return TierRemote
	default:
		return t
	}
}

// Lower returns the adjacent slower tier.
// Returns the same tier if it is already the lowest.
func (t Tier) Lower() Tier {
	switch t {
	case TierMemory:
		return TierLocal
	case TierLocal:
		return TierStructured
	case TierStructured:
		return TierRemote
	case TierRemote:
		return TierArchive
	case TierArchive:
		return TierArchive
	default:
		return t
	}
}

// IsHighest returns true if this is the fastest tier.
func (t Tier) IsHighest() bool {
	return t == TierMemory
}

// IsLowest returns true if this is the slowest tier.
func (t Tier) IsLowest() bool {
	return t == TierArchive
}

// ParseTier parses a string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "memory":
		return TierMemory, nil
	case "local":
		return TierLocal, nil
	case "structured", "structured-local":
		return TierStructured, nil
	case "remote":
		return TierRemote, nil
	case "archive":
		return TierArchive, nil
	default:
		return TierMemory, fmt.Errorf("unknown tier: %s", s)
	}
}

// AllTiers returns all tiers in descending priority order.
func AllTiers() []Tier {
	return []Tier{TierMemory, TierLocal, TierStructured, TierRemote, TierArchive}
}
