package follow

import (
	"context"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/ingest"
	"swarm-indexer/internal/registry"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/storage/sqlite"
	"swarm-indexer/internal/types"
)

// fakeChainClient is a minimal in-memory chainclient.Client, grounded on the
// same fake used by internal/ingest's engine_test.go; its tip is mutable so
// tests can simulate the chain advancing between follow-loop ticks.
type fakeChainClient struct {
	tip atomic.Uint64
}

func (f *fakeChainClient) BlockNumber(ctx context.Context) (types.BlockNumber, error) {
	return types.BlockNumber(f.tip.Load()), nil
}

func (f *fakeChainClient) BlockTimestamp(ctx context.Context, block types.BlockNumber) (time.Time, error) {
	return time.Unix(1_700_000_000+int64(block), 0).UTC(), nil
}

func (f *fakeChainClient) Logs(ctx context.Context, address types.Address, from, to types.BlockNumber) ([]chainclient.Log, error) {
	return nil, nil
}

func (f *fakeChainClient) Transaction(ctx context.Context, hash common.Hash) (chainclient.Transaction, error) {
	return chainclient.Transaction{}, nil
}

func (f *fakeChainClient) Code(ctx context.Context, address common.Address) ([]byte, error) {
	return nil, nil
}

func (f *fakeChainClient) CurrentPrice(ctx context.Context, oracle types.Address) (types.BigUnsigned, error) {
	return types.Zero(), nil
}

func (f *fakeChainClient) RemainingBalance(ctx context.Context, postageStamp types.Address, batchID common.Hash) (types.BigUnsigned, error) {
	return types.Zero(), nil
}

func testLoop(t *testing.T, chain *fakeChainClient, cfg Config) (*Loop, *sqlite.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.Open(filepath.Join(dir, "follow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	postage := types.Address("0x2222222222222222222222222222222222222222")
	reg, err := registry.New([]registry.Contract{{
		Name:            "postage-stamp-v1",
		Family:          types.FamilyPostageStamp,
		Address:         postage,
		Version:         "v1",
		DeploymentBlock: 0,
		Active:          true,
	}})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	engine, err := ingest.NewEngine(store, reg, chain, ingest.Config{
		ChunkSize: 1_000,
		FanOut:    4,
		Retry: retry.Config{
			MaxRetries:        1,
			InitialDelay:      time.Millisecond,
			BackoffMultiplier: 2,
			ExtendedRetryWait: time.Millisecond,
		},
		AddressTracking: ingest.AddressTrackingConfig{Enabled: true, ContractDetection: true, MaxFundersTracked: 10},
	}, logrus.NewEntry(log))
	require.NoError(t, err)

	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, BackoffMultiplier: 2, ExtendedRetryWait: time.Millisecond}
	}
	return NewLoop(engine, store, chain, cfg, logrus.NewEntry(log)), store
}

func TestTickScansUpToSafeTip(t *testing.T) {
	chain := &fakeChainClient{}
	chain.tip.Store(110)

	loop, store := testLoop(t, chain, Config{SafetyDepth: 10})

	result, err := loop.tick(context.Background())
	require.NoError(t, err)
	require.True(t, result.Scanned)
	require.Equal(t, types.BlockNumber(100), result.Result.LastSyncedBlock)

	last, ok, err := store.LastSyncedBlock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.BlockNumber(100), last)
}

func TestTickBelowSafetyDepthIsNoOp(t *testing.T) {
	chain := &fakeChainClient{}
	chain.tip.Store(5)

	loop, store := testLoop(t, chain, Config{SafetyDepth: 10})

	result, err := loop.tick(context.Background())
	require.NoError(t, err)
	require.False(t, result.Scanned)

	_, ok, err := store.LastSyncedBlock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTickNoNewBlocksIsNoOp(t *testing.T) {
	chain := &fakeChainClient{}
	chain.tip.Store(110)
	loop, _ := testLoop(t, chain, Config{SafetyDepth: 10})

	first, err := loop.tick(context.Background())
	require.NoError(t, err)
	require.True(t, first.Scanned)

	second, err := loop.tick(context.Background())
	require.NoError(t, err)
	require.False(t, second.Scanned)
}

func TestRunStopsOnCancellation(t *testing.T) {
	chain := &fakeChainClient{}
	chain.tip.Store(110)
	loop, _ := testLoop(t, chain, Config{SafetyDepth: 10, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, RunOptions{OnTick: func(TickResult) {
			ticks++
			if ticks == 2 {
				cancel()
			}
		}})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follow loop did not stop after cancellation")
	}
	require.GreaterOrEqual(t, ticks, 2)
}

func TestRunRefreshesTopFundersPeriodically(t *testing.T) {
	chain := &fakeChainClient{}
	chain.tip.Store(110)
	loop, store := testLoop(t, chain, Config{SafetyDepth: 10})

	recipient := types.Address("0xcccccccccccccccccccccccccccccccccccccccc")
	tx, err := store.BeginChunk(context.Background())
	require.NoError(t, err)
	_, err = tx.UpsertAddress(context.Background(), func(rec *storage.AddressRecord) {
		rec.Address = recipient
		rec.Classification = storage.ClassificationBuyer
	})
	require.NoError(t, err)
	require.NoError(t, tx.SetLastSyncedBlock(context.Background(), 1))
	require.NoError(t, tx.Commit(context.Background()))

	before, ok, err := store.Address(context.Background(), recipient)
	require.NoError(t, err)
	require.True(t, ok)

	loop.cfg.TopFundersEveryTicks = 1
	loop.cfg.TopFundersMax = 10
	_, err = loop.tick(context.Background())
	require.NoError(t, err)

	after, ok, err := store.Address(context.Background(), recipient)
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, after.Version, before.Version)
}
