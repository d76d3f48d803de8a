package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" && (c.Tiers.Local.Enabled || c.Tiers.Structured.Enabled || c.Tiers.Archive.Enabled) {
		errs = append(errs, errors.New("data_dir is required when on-disk tiers are enabled"))
	}

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	if err := c.Health.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("health: %w", err))
	}

	if err := c.Compression.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("compression: %w", err))
	}

	if c.Tiers.Remote.Enabled && c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote: base_url is required when the remote tier is enabled"))
	}

	if !c.Tiers.Memory.Enabled && !c.Tiers.Local.Enabled && !c.Tiers.Structured.Enabled &&
		!c.Tiers.Remote.Enabled && !c.Tiers.Archive.Enabled {
		errs = append(errs, errors.New("tiers: at least one tier must be enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the engine configuration.
func (c *EngineConfig) Validate() error {
	var errs []error

	if c.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("max_queue_size must be positive"))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}

	if c.BatchInterval <= 0 {
		errs = append(errs, errors.New("batch_interval must be positive"))
	}

	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}

	if c.OptimisticTimeout <= 0 {
		errs = append(errs, errors.New("optimistic_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the health configuration.
func (c *HealthConfig) Validate() error {
	var errs []error

	if c.Degraded <= 0 || c.Degraded > 1 {
		errs = append(errs, errors.New("degraded must be in (0, 1]"))
	}

	if c.Unhealthy <= 0 {
		errs = append(errs, errors.New("unhealthy must be positive"))
	}

	if c.Degraded >= c.Unhealthy {
		errs = append(errs, errors.New("degraded must be below unhealthy"))
	}

	if c.Hysteresis < 0 || c.Hysteresis >= c.Degraded {
		errs = append(errs, errors.New("hysteresis must be non-negative and below degraded"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the compression configuration.
func (c *CompressionConfig) Validate() error {
	switch c.Algorithm {
	case "zstd", "s2", "none", "":
	default:
		return fmt.Errorf("unknown algorithm: %s", c.Algorithm)
	}

	if c.Algorithm == "zstd" && (c.Level < 0 || c.Level > 22) {
		return errors.New("zstd level must be in [0, 22]")
	}

	if c.MinSize < 0 {
		return errors.New("min_size must be non-negative")
	}

	return nil
}
