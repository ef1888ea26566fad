// Package config provides a reusable loader for swarmidx's configuration,
// merged from four sources with strict precedence — defaults, file,
// environment, command-line (§6) — and validated at load.
package config

import (
	"time"

	"swarm-indexer/internal/ingest"
	"swarm-indexer/internal/registry"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/types"
)

// Config is the unified configuration for a swarmidx process. Field tags
// are mapstructure so viper can unmarshal file/env/flag sources directly
// into it; group names and keys follow §6's table.
type Config struct {
	RPC struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"rpc"`

	Database struct {
		// Driver is "sqlite" or "postgres"; DSN is the embedded-file path
		// or server connection string, per §6's "connection string;
		// embedded-file path or server URL".
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Blockchain struct {
		ChunkSize        uint64        `mapstructure:"chunk_size"`
		BlockTimeSeconds float64       `mapstructure:"block_time_seconds"`
		FanOut           int           `mapstructure:"fan_out"`
		SafetyDepth      uint64        `mapstructure:"safety_depth"`
		PollInterval     time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"blockchain"`

	Retry struct {
		MaxRetries               int     `mapstructure:"max_retries"`
		InitialDelayMS           int     `mapstructure:"initial_delay_ms"`
		BackoffMultiplier        float64 `mapstructure:"backoff_multiplier"`
		ExtendedRetryWaitSeconds int     `mapstructure:"extended_retry_wait_seconds"`
	} `mapstructure:"retry"`

	Contracts []ContractConfig `mapstructure:"contracts"`

	AddressTracking struct {
		Enabled               bool   `mapstructure:"enabled"`
		MaxFundersTracked     int    `mapstructure:"max_funders_tracked"`
		FundingLookbackBlocks uint64 `mapstructure:"funding_lookback_blocks"`
		MinFundingAmount      string `mapstructure:"min_funding_amount"`
		ContractDetection     bool   `mapstructure:"contract_detection"`
		TopFundersEveryTicks  int    `mapstructure:"top_funders_every_ticks"`
	} `mapstructure:"address_tracking"`
}

// ContractConfig mirrors registry.Contract's fields as a viper-friendly,
// flat unmarshal target (§6 "contracts[]").
type ContractConfig struct {
	Name            string  `mapstructure:"name"`
	ContractType    string  `mapstructure:"contract_type"`
	Address         string  `mapstructure:"address"`
	DeploymentBlock uint64  `mapstructure:"deployment_block"`
	Version         string  `mapstructure:"version"`
	Active          bool    `mapstructure:"active"`
	EndBlock        *uint64 `mapstructure:"end_block"`
	PausedAt        *uint64 `mapstructure:"paused_at"`
}

// RetryConfig converts the retry group into internal/retry's Config shape.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:        c.Retry.MaxRetries,
		InitialDelay:      time.Duration(c.Retry.InitialDelayMS) * time.Millisecond,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		ExtendedRetryWait: time.Duration(c.Retry.ExtendedRetryWaitSeconds) * time.Second,
	}
}

// AddressTrackingConfig converts the address_tracking group into
// internal/ingest's Config shape.
func (c *Config) AddressTrackingConfig() (ingest.AddressTrackingConfig, error) {
	min := types.Zero()
	if c.AddressTracking.MinFundingAmount != "" {
		parsed, err := types.ParseBigUnsigned(c.AddressTracking.MinFundingAmount)
		if err != nil {
			return ingest.AddressTrackingConfig{}, err
		}
		min = parsed
	}
	return ingest.AddressTrackingConfig{
		Enabled:               c.AddressTracking.Enabled,
		MaxFundersTracked:     c.AddressTracking.MaxFundersTracked,
		FundingLookbackBlocks: c.AddressTracking.FundingLookbackBlocks,
		MinFundingAmount:      min,
		ContractDetection:     c.AddressTracking.ContractDetection,
	}, nil
}

// RegistryContracts converts the contracts[] group into registry.Contract
// values for registry.New.
func (c *Config) RegistryContracts() ([]registry.Contract, error) {
	out := make([]registry.Contract, 0, len(c.Contracts))
	for _, cc := range c.Contracts {
		addr, ok := types.NewAddress(cc.Address)
		if !ok {
			return nil, invalidAddressError(cc.Name, cc.Address)
		}
		var endBlock *types.BlockNumber
		if cc.EndBlock != nil {
			b := types.BlockNumber(*cc.EndBlock)
			endBlock = &b
		}
		var pausedAt *types.BlockNumber
		if cc.PausedAt != nil {
			b := types.BlockNumber(*cc.PausedAt)
			pausedAt = &b
		}
		out = append(out, registry.Contract{
			Name:            cc.Name,
			Family:          types.ContractFamily(cc.ContractType),
			Address:         addr,
			Version:         types.ContractVersion(cc.Version),
			DeploymentBlock: types.BlockNumber(cc.DeploymentBlock),
			EndBlock:        endBlock,
			PausedAt:        pausedAt,
			Active:          cc.Active,
		})
	}
	return out, nil
}

// PostageStampAddress returns the active PostageStamp contract's address,
// used directly by the expiry refresh command, which bypasses the registry.
func (c *Config) PostageStampAddress() (types.Address, bool) {
	return c.activeAddress(types.FamilyPostageStamp)
}

// PriceOracleAddress returns the active PriceOracle contract's address.
func (c *Config) PriceOracleAddress() (types.Address, bool) {
	return c.activeAddress(types.FamilyPriceOracle)
}

func (c *Config) activeAddress(family types.ContractFamily) (types.Address, bool) {
	for _, cc := range c.Contracts {
		if types.ContractFamily(cc.ContractType) == family && cc.Active {
			if addr, ok := types.NewAddress(cc.Address); ok {
				return addr, true
			}
		}
	}
	return "", false
}
