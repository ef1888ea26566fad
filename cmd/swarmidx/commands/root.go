// Package commands builds the swarmidx cobra CLI tree: one subcommand per
// verb in §6's invocation surface (ingest, sync, follow, summary, batches,
// expiry, addresses, export), plus the diagnostics-ledger query supplement
// D.2 adds. Rendering is deliberately plain `encoding/json` (§A.4
// "Table/CSV/JSON rendering is out of scope") — a richer renderer is an
// external collaborator.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"swarm-indexer/internal/addresses"
	"swarm-indexer/internal/chainclient/rpc"
	"swarm-indexer/internal/config"
	"swarm-indexer/internal/expiry"
	"swarm-indexer/internal/follow"
	"swarm-indexer/internal/ingest"
	"swarm-indexer/internal/query"
	"swarm-indexer/internal/registry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/storage/postgres"
	"swarm-indexer/internal/storage/sqlite"
)

// app holds the shared collaborators every subcommand's RunE closure reads
// from (§9 "no global singletons" — these live on an instance the root
// command constructs, not in package-level vars).
type app struct {
	cfg    *config.Config
	store  storage.Store
	chain  *rpc.Client
	reg    *registry.Registry
	log    *logrus.Entry
	ingest *ingest.Engine
	expiry *expiry.Engine
	query  *query.Surface
}

var configPathFlag string

// NewRoot builds the swarmidx root command.
func NewRoot() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "swarmidx",
		Short: "Indexer and analytics store for the Swarm storage-incentives ecosystem",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), cmd.Flags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to a YAML configuration file")
	config.Flags(root.PersistentFlags())

	root.AddCommand(
		a.ingestCmd(),
		a.syncCmd(),
		a.followCmd(),
		a.summaryCmd(),
		a.batchesCmd(),
		a.expiryCmd(),
		a.addressesCmd(),
		a.exportCmd(),
		a.diagnosticsCmd(),
	)
	return root
}

// init loads config and dials the storage/chain collaborators. Mirrors the
// teacher's bootstrap_node.go PersistentPreRunE shape: load .env first, then
// viper-backed config, then construct the long-lived collaborators once per
// process invocation.
func (a *app) init(ctx context.Context, flags *pflag.FlagSet) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPathFlag, flags)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log := logrus.New()
	a.log = logrus.NewEntry(log)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return err
	}
	a.store = store

	chain, err := rpc.Dial(ctx, cfg.RPC.URL)
	if err != nil {
		store.Close()
		return err
	}
	a.chain = chain

	contracts, err := cfg.RegistryContracts()
	if err != nil {
		return err
	}
	reg, err := registry.New(contracts)
	if err != nil {
		return err
	}
	a.reg = reg

	addrTracking, err := cfg.AddressTrackingConfig()
	if err != nil {
		return err
	}
	ingestEngine, err := ingest.NewEngine(store, reg, chain, ingest.Config{
		ChunkSize:       cfg.Blockchain.ChunkSize,
		FanOut:          cfg.Blockchain.FanOut,
		Retry:           cfg.RetryConfig(),
		AddressTracking: addrTracking,
	}, a.log)
	if err != nil {
		return err
	}
	a.ingest = ingestEngine

	a.expiry = expiry.NewEngine(store, chain, expiry.Config{
		BlockTimeSeconds: cfg.Blockchain.BlockTimeSeconds,
		Retry:            cfg.RetryConfig(),
	})
	a.query = query.NewSurface(store, a.expiry)

	return nil
}

func (a *app) close() error {
	if a.chain != nil {
		a.chain.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Database.DSN)
	default:
		return sqlite.Open(cfg.Database.DSN)
	}
}

func (a *app) refreshTopFunders() (int, error) {
	return addresses.RefreshAll(context.Background(), a.store, a.cfg.AddressTracking.MaxFundersTracked)
}

func (a *app) newFollowLoop() *follow.Loop {
	return follow.NewLoop(a.ingest, a.store, a.chain, follow.Config{
		PollInterval:         a.cfg.Blockchain.PollInterval,
		SafetyDepth:          a.cfg.Blockchain.SafetyDepth,
		Retry:                a.cfg.RetryConfig(),
		TopFundersEveryTicks: a.cfg.AddressTracking.TopFundersEveryTicks,
		TopFundersMax:        a.cfg.AddressTracking.MaxFundersTracked,
	}, a.log)
}

// printJSON is the CLI's sole rendering path (§A.4).
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
