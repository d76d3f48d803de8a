package storage

import (
	"fmt"

	"github.com/xtxerr/strata/internal/cache"
	"github.com/xtxerr/strata/internal/storage/backend"
	"github.com/xtxerr/strata/internal/storage/codec"
	"github.com/xtxerr/strata/internal/storage/config"
	"github.com/xtxerr/strata/internal/storage/engine"
	"github.com/xtxerr/strata/internal/storage/tiered"
	"github.com/xtxerr/strata/internal/storage/types"
)

// Open builds the full stack from configuration: backends for every
// enabled tier, the codec, the cache, the orchestrator and the engine.
// The engine is returned stopped; call Start on it.
func Open(cfg *config.Config) (*engine.Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	backends, err := buildBackends(cfg)
	if err != nil {
		return nil, err
	}

	cd, err := codec.New(cfg.Compression.Algorithm, cfg.Compression.Level)
	if err != nil {
		closeAll(backends)
		return nil, fmt.Errorf("create codec: %w", err)
	}

	c := cache.New(cfg.Cache.DefaultTTL)

	orch, err := tiered.New(cfg, c, backends, cd)
	if err != nil {
		closeAll(backends)
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	return engine.New(cfg, orch), nil
}

// buildBackends constructs a backend for every enabled tier.
func buildBackends(cfg *config.Config) ([]backend.Backend, error) {
	var backends []backend.Backend

	if cfg.Tiers.Memory.Enabled {
		backends = append(backends, backend.NewMemory(cfg.Tiers.Memory.MaxSizeBytes, cfg.Tiers.Memory.TTL))
	}

	if cfg.Tiers.Local.Enabled {
		b, err := backend.NewLocal(cfg.TierDir(types.TierLocal.String()))
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("create local tier: %w", err)
		}
		backends = append(backends, b)
	}

	if cfg.Tiers.Structured.Enabled {
		b, err := backend.NewStructured(cfg.TierDir(types.TierStructured.String()))
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("create structured tier: %w", err)
		}
		backends = append(backends, b)
	}

	if cfg.Tiers.Remote.Enabled {
		backends = append(backends, backend.NewRemote(cfg.Remote.BaseURL, cfg.Remote.Scope, cfg.Remote.Timeout))
	}

	if cfg.Tiers.Archive.Enabled {
		b, err := backend.NewArchive(cfg.TierDir(types.TierArchive.String()))
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("create archive tier: %w", err)
		}
		backends = append(backends, b)
	}

	return backends, nil
}

func closeAll(backends []backend.Backend) {
	for _, b := range backends {
		b.Close()
	}
}
