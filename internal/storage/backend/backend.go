// Package backend defines the uniform contract every physical tier
// implements, plus the five concrete tiers: in-process memory, local
// JSON files, a DuckDB-backed structured store, a remote HTTP store, and
// parquet archive segments.
//
// Backends store opaque envelopes; value serialization and compression
// happen above them in the orchestrator.
package backend

import (
	"context"

	"github.com/xtxerr/strata/internal/storage/types"
)

// Backend is one physical tier in the fallback chain.
type Backend interface {
	// Tier identifies which tier this backend serves.
	Tier() types.Tier

	// Get returns the envelope for key. The bool reports presence;
	// absence is not an error.
	Get(ctx context.Context, key string) (types.Envelope, bool, error)

	// Set stores an envelope, overwriting any existing one.
	Set(ctx context.Context, key string, env types.Envelope) error

	// Delete removes a key. The bool reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}
