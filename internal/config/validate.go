package config

import (
	"fmt"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/registry"
)

// Validate checks the fully-merged config for the startup faults §7
// classifies as KindConfig: unknown contract family, invalid address,
// window conflict, and non-positive scalars that would otherwise make the
// engines misbehave silently.
func Validate(cfg *Config) error {
	if cfg.RPC.URL == "" {
		return errs.New(errs.KindConfig, "rpc.url is required")
	}
	if cfg.Database.DSN == "" {
		return errs.New(errs.KindConfig, "database.dsn is required")
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errs.New(errs.KindConfig, fmt.Sprintf("database.driver: unknown driver %q", cfg.Database.Driver))
	}

	if cfg.Blockchain.ChunkSize == 0 {
		return errs.New(errs.KindConfig, "blockchain.chunk_size must be positive")
	}
	if cfg.Blockchain.BlockTimeSeconds <= 0 {
		return errs.New(errs.KindConfig, "blockchain.block_time_seconds must be positive")
	}
	if cfg.Blockchain.FanOut <= 0 {
		return errs.New(errs.KindConfig, "blockchain.fan_out must be positive")
	}

	if cfg.Retry.MaxRetries <= 0 {
		return errs.New(errs.KindConfig, "retry.max_retries must be positive")
	}
	if cfg.Retry.InitialDelayMS <= 0 {
		return errs.New(errs.KindConfig, "retry.initial_delay_ms must be positive")
	}
	if cfg.Retry.BackoffMultiplier <= 1 {
		return errs.New(errs.KindConfig, "retry.backoff_multiplier must be greater than 1")
	}
	if cfg.Retry.ExtendedRetryWaitSeconds <= 0 {
		return errs.New(errs.KindConfig, "retry.extended_retry_wait_seconds must be positive")
	}

	if len(cfg.Contracts) == 0 {
		return errs.New(errs.KindConfig, "at least one contract must be configured")
	}
	contracts, err := cfg.RegistryContracts()
	if err != nil {
		return err
	}
	// registry.New re-validates family membership and window overlap
	// (§4.2); surfacing its ValidationError directly keeps one source of
	// truth for "what a well-formed contract set looks like".
	if _, err := registry.New(contracts); err != nil {
		return errs.Wrap(errs.KindConfig, err, "contract registry validation")
	}

	if cfg.AddressTracking.Enabled && cfg.AddressTracking.MaxFundersTracked <= 0 {
		return errs.New(errs.KindConfig, "address_tracking.max_funders_tracked must be positive when enabled")
	}

	return nil
}

func invalidAddressError(name, raw string) error {
	return errs.New(errs.KindConfig, fmt.Sprintf("contract %q: invalid address %q", name, raw))
}
