package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swarm-indexer/internal/errs"
)

// EnvPrefix is the "PREFIX" in §6's "PREFIX__SECTION__KEY" environment
// variable convention.
const EnvPrefix = "SWARMIDX"

// setDefaults seeds viper's lowest-precedence layer. Values here mirror a
// conservative single-chain Gnosis deployment; every one is overridable by
// file, environment, or flag.
func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "swarmidx.db")
	v.SetDefault("blockchain.chunk_size", 2_000)
	v.SetDefault("blockchain.block_time_seconds", 5.0)
	v.SetDefault("blockchain.fan_out", 8)
	v.SetDefault("blockchain.safety_depth", 12)
	v.SetDefault("blockchain.poll_interval", "15s")
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.initial_delay_ms", 250)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.extended_retry_wait_seconds", 30)
	v.SetDefault("address_tracking.enabled", true)
	v.SetDefault("address_tracking.max_funders_tracked", 10)
	v.SetDefault("address_tracking.funding_lookback_blocks", 0)
	v.SetDefault("address_tracking.contract_detection", true)
	v.SetDefault("address_tracking.top_funders_every_ticks", 20)
}

// Load merges the four sources in precedence order — defaults, file (if
// configPath is non-empty), environment (EnvPrefix__SECTION__KEY), and
// command-line flags (if flags is non-nil) — and validates the result.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "reading config file")
		}
	}

	v.SetEnvPrefix(EnvPrefix + "_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "binding command-line flags")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "unmarshalling config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Flags registers the command-line flags Load can bind, named to match
// their mapstructure key exactly (viper binds a pflag to a config key by
// its flag name, so "blockchain.chunk_size" is both). Defaults mirror
// setDefaults: viper only consults a bound flag's own default as a
// fallback ahead of SetDefault, so leaving these at their zero value would
// silently override the real default whenever this FlagSet is bound.
func Flags(fs *pflag.FlagSet) {
	fs.String("rpc.url", "", "Gnosis Chain JSON-RPC endpoint")
	fs.String("database.driver", "sqlite", "storage backend: sqlite or postgres")
	fs.String("database.dsn", "swarmidx.db", "embedded-file path or server connection string")
	fs.Uint64("blockchain.chunk_size", 2_000, "blocks scanned per chunk")
	fs.Float64("blockchain.block_time_seconds", 5.0, "chain-specific average block time")
	fs.Int("blockchain.fan_out", 8, "contracts fetched concurrently within one chunk")
	fs.Uint64("blockchain.safety_depth", 12, "blocks held back from the tip before scanning")
	fs.Duration("blockchain.poll_interval", 15*time.Second, "follow loop poll interval")
}
