package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/strata/internal/storage/types"
)

// Config represents the complete storage configuration.
type Config struct {
	// DataDir is the root directory for all on-disk tiers.
	DataDir string `yaml:"data_dir"`

	// Tiers configures each physical tier.
	Tiers TiersConfig `yaml:"tiers"`

	// Placement tunes the write-time tier selection heuristics.
	Placement PlacementConfig `yaml:"placement"`

	// Engine configures the async operation queue and drain loop.
	Engine EngineConfig `yaml:"engine"`

	// Cache configures the in-process cache layer.
	Cache CacheConfig `yaml:"cache"`

	// Health configures the advisory health thresholds.
	Health HealthConfig `yaml:"health"`

	// Remote configures the network-backed tier.
	Remote RemoteConfig `yaml:"remote"`

	// Compression configures the codec.
	Compression CompressionConfig `yaml:"compression"`
}

// TierConfig configures a single tier.
type TierConfig struct {
	// Enabled includes the tier in the fallback chain.
	Enabled bool `yaml:"enabled"`

	// Priority orders the fallback chain; higher is probed first.
	Priority int `yaml:"priority"`

	// MaxSizeBytes bounds the tier's footprint. Zero means unbounded.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`

	// TTL bounds entry age in the tier. Zero means no expiry.
	// Only the memory tier enforces this.
	TTL time.Duration `yaml:"ttl"`
}

// TiersConfig configures every tier.
type TiersConfig struct {
	Memory     TierConfig `yaml:"memory"`
	Local      TierConfig `yaml:"local"`
	Structured TierConfig `yaml:"structured"`
	Remote     TierConfig `yaml:"remote"`
	Archive    TierConfig `yaml:"archive"`
}

// For returns the configuration for the given tier.
func (t *TiersConfig) For(tier types.Tier) TierConfig {
	switch tier {
	case types.TierMemory:
		return t.Memory
	case types.TierLocal:
		return t.Local
	case types.TierStructured:
		return t.Structured
	case types.TierRemote:
		return t.Remote
	case types.TierArchive:
		return t.Archive
	default:
		return TierConfig{}
	}
}

// PlacementConfig tunes write-time tier selection.
type PlacementConfig struct {
	// MemoryMaxValueBytes is the largest serialized value eligible for
	// the memory tier on a high-priority write.
	MemoryMaxValueBytes int64 `yaml:"memory_max_value_bytes"`

	// CascadeMaxValueBytes is the largest serialized value that is
	// opportunistically warm-written into the memory tier after a write
	// to a slower target tier. Zero disables the cascade.
	CascadeMaxValueBytes int64 `yaml:"cascade_max_value_bytes"`
}

// EngineConfig configures the async storage engine.
type EngineConfig struct {
	// MaxQueueSize bounds the operation queue; enqueue beyond the bound
	// fails synchronously.
	MaxQueueSize int `yaml:"max_queue_size"`

	// BatchSize is the maximum number of operations popped per drain.
	BatchSize int `yaml:"batch_size"`

	// BatchInterval is the drain timer period.
	BatchInterval time.Duration `yaml:"batch_interval"`

	// MaxRetries is the default per-operation attempt budget.
	MaxRetries int `yaml:"max_retries"`

	// OptimisticTimeout bounds how long a speculative value is trusted
	// before reads fall through to the real tiers.
	OptimisticTimeout time.Duration `yaml:"optimistic_timeout"`

	// DefaultTimeout bounds a single tier call when the operation
	// options do not override it.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// CacheConfig configures the in-process cache.
type CacheConfig struct {
	// DefaultTTL applies when an operation requests no explicit TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// TierLocationTTL bounds the cached key-to-tier mapping.
	TierLocationTTL time.Duration `yaml:"tier_location_ttl"`

	// JanitorInterval is the expired-entry sweep period. Zero disables
	// the sweep; lazy expiry still applies.
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// HealthConfig configures the advisory health controller.
type HealthConfig struct {
	// Degraded is the queue usage ratio at which health degrades.
	Degraded float64 `yaml:"degraded"`

	// Unhealthy is the queue usage ratio at which health is critical.
	Unhealthy float64 `yaml:"unhealthy"`

	// Hysteresis is subtracted from thresholds on the way down to avoid
	// level flapping.
	Hysteresis float64 `yaml:"hysteresis"`
}

// RemoteConfig configures the network-backed tier.
type RemoteConfig struct {
	// BaseURL is the root of the remote key-value API.
	BaseURL string `yaml:"base_url"`

	// Scope is the initial namespace; callers may change it at runtime.
	Scope string `yaml:"scope"`

	// Timeout bounds each remote HTTP call.
	Timeout time.Duration `yaml:"timeout"`
}

// CompressionConfig configures the codec.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: zstd, s2, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`

	// MinSize skips compression for serialized values below this size.
	MinSize int `yaml:"min_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/strata",
		Tiers: TiersConfig{
			Memory: TierConfig{
				Enabled:      true,
				Priority:     types.TierMemory.DefaultPriority(),
				MaxSizeBytes: 64 * 1024 * 1024, // 64MB
				TTL:          10 * time.Minute,
			},
			Local: TierConfig{
				Enabled:  true,
				Priority: types.TierLocal.DefaultPriority(),
			},
			Structured: TierConfig{
				Enabled:  true,
				Priority: types.TierStructured.DefaultPriority(),
			},
			Remote: TierConfig{
				Enabled:  false,
				Priority: types.TierRemote.DefaultPriority(),
			},
			Archive: TierConfig{
				Enabled:  false,
				Priority: types.TierArchive.DefaultPriority(),
			},
		},
		Placement: PlacementConfig{
			MemoryMaxValueBytes:  10 * 1024,
			CascadeMaxValueBytes: 10 * 1024,
		},
		Engine: EngineConfig{
			MaxQueueSize:      1000,
			BatchSize:         50,
			BatchInterval:     100 * time.Millisecond,
			MaxRetries:        3,
			OptimisticTimeout: 30 * time.Second,
			DefaultTimeout:    5 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			TierLocationTTL: 30 * time.Second,
			JanitorInterval: time.Minute,
		},
		Health: HealthConfig{
			Degraded:   0.80,
			Unhealthy:  1.00,
			Hysteresis: 0.05,
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
			MinSize:   256,
		},
	}
}

// Load reads a YAML configuration file, applying defaults for any
// unspecified settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// TierDir returns the on-disk directory for a tier.
func (c *Config) TierDir(tier string) string {
	return filepath.Join(c.DataDir, tier)
}

// EnsureDirectories creates the on-disk tier directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Tiers.Local.Enabled {
		dirs = append(dirs, c.TierDir(types.TierLocal.String()))
	}
	if c.Tiers.Structured.Enabled {
		dirs = append(dirs, c.TierDir(types.TierStructured.String()))
	}
	if c.Tiers.Archive.Enabled {
		dirs = append(dirs, c.TierDir(types.TierArchive.String()))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
