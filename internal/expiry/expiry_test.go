package expiry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage/sqlite"
	"swarm-indexer/internal/types"
)

func seedBatch(t *testing.T, store *sqlite.Store, batchID string, depth uint8, balance uint64) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)

	owner := types.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	nb := types.FromUint64(balance)
	ev := &decode.StampEvent{
		EventKind:         "BatchCreated",
		BatchID:           &batchID,
		BlockNumber:       1,
		BlockTimestamp:    time.Unix(1_700_000_000, 0).UTC(),
		TxHash:            "0x" + batchID[2:],
		LogIndex:          0,
		ContractFamily:    types.FamilyPostageStamp,
		ContractAddress:   types.Address("0x2222222222222222222222222222222222222222"),
		Owner:             &owner,
		Depth:             &depth,
		NormalisedBalance: &nb,
	}
	require.NoError(t, tx.UpsertStampEvent(ctx, ev))
	require.NoError(t, tx.ApplyBatchCreated(ctx, ev))
	require.NoError(t, tx.SetLastSyncedBlock(ctx, 1))
	require.NoError(t, tx.Commit(ctx))
}

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.Open(filepath.Join(dir, "expiry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// TestTTLMatchesSpecScenario reproduces §8 scenario 3 verbatim:
// normalised_balance=10_000_000_000, depth=20, p=24_000 gives an
// already-expired batch (ttl_blocks=0); normalised_balance=10^13 gives
// ttl_blocks=397 and ttl_seconds=1985 at a 5-second block time.
func TestTTLMatchesSpecScenario(t *testing.T) {
	store := testStore(t)
	seedBatch(t, store, "0x3333333333333333333333333333333333333333333333333333333333333333", 20, 10_000_000_000)

	engine := NewEngine(store, nil, Config{BlockTimeSeconds: 5})
	batch, ok, err := store.Batch(context.Background(), "0x3333333333333333333333333333333333333333333333333333333333333333")
	require.NoError(t, err)
	require.True(t, ok)

	price := types.FromUint64(24_000)
	now := time.Now()

	result, err := engine.TTL(batch, price, now)
	require.NoError(t, err)
	require.EqualValues(t, 1_048_576, result.Chunks)
	require.EqualValues(t, 0, result.TTLBlocks)
	require.True(t, result.Expired)

	largeBalance, err := types.ParseBigUnsigned("10000000000000")
	require.NoError(t, err)
	batch.NormalisedBalance = largeBalance
	result, err = engine.TTL(batch, price, now)
	require.NoError(t, err)
	require.EqualValues(t, 397, result.TTLBlocks)
	require.InDelta(t, 1985, result.TTLSeconds, 0.001)
}

func TestTTLZeroPriceIsError(t *testing.T) {
	store := testStore(t)
	seedBatch(t, store, "0x4444444444444444444444444444444444444444444444444444444444444444", 10, 5_000)
	engine := NewEngine(store, nil, Config{BlockTimeSeconds: 5})

	batch, _, err := store.Batch(context.Background(), "0x4444444444444444444444444444444444444444444444444444444444444444")
	require.NoError(t, err)

	_, err = engine.TTL(batch, types.Zero(), time.Now())
	require.Error(t, err)
}

// TestPriceTrajectoryConverges exercises §4.6's fixed-point iteration with a
// mild scenario (a small rise spread over many days) where the map
// contracts quickly, and checks the iteration reports convergence with a
// positive TTL and an average price no lower than the flat price.
func TestPriceTrajectoryConverges(t *testing.T) {
	store := testStore(t)
	// depth 0 => chunks = 1, so normalised_balance doubles as ttl_blocks*p.
	seedBatch(t, store, "0x5555555555555555555555555555555555555555555555555555555555555555", 0, 12_441_600_000)
	engine := NewEngine(store, nil, Config{BlockTimeSeconds: 5})

	batch, _, err := store.Batch(context.Background(), "0x5555555555555555555555555555555555555555555555555555555555555555")
	require.NoError(t, err)

	flatPrice := types.FromUint64(24_000)
	result, err := engine.PriceTrajectory(batch, flatPrice, TrajectoryParams{PercentageChange: 10, Days: 90})
	require.NoError(t, err)
	require.True(t, result.Converged)
	require.Greater(t, result.TTLDays, 0.0)
	require.GreaterOrEqual(t, result.AvgPrice.Cmp(flatPrice), 0)
}

func TestAveragePriceFlatWhenNoChange(t *testing.T) {
	p := types.FromUint64(24_000)
	avg := averagePrice(p, 1, 10)
	require.Equal(t, p.String(), avg.String())
}

// TestAggregateBucketsByDay seeds two depth-2 batches that expire on
// different days (about 14,468 and 28,935 days out at price 1) and checks
// the day buckets together account for both batches' chunks.
func TestAggregateBucketsByDay(t *testing.T) {
	store := testStore(t)
	seedBatch(t, store, "0x6666666666666666666666666666666666666666666666666666666666666666", 2, 1_000_000_000)
	seedBatch(t, store, "0x7777777777777777777777777777777777777777777777777777777777777777", 2, 2_000_000_000)
	engine := NewEngine(store, nil, Config{BlockTimeSeconds: 5})

	buckets, err := engine.Aggregate(context.Background(), types.FromUint64(1), time.Now(), PeriodDay)
	require.NoError(t, err)
	require.NotEmpty(t, buckets)

	var total uint64
	for _, b := range buckets {
		total += b.ChunksExpiring
	}
	require.EqualValues(t, 8, total) // two depth-2 batches, 4 chunks each
}

func TestHumanizeBytes(t *testing.T) {
	require.Equal(t, "4.0 KiB", HumanizeBytes(4096))
}

type fakeChainClient struct {
	balances map[string]types.BigUnsigned
	calls    int
}

func (f *fakeChainClient) BlockNumber(ctx context.Context) (types.BlockNumber, error) { return 0, nil }
func (f *fakeChainClient) BlockTimestamp(ctx context.Context, b types.BlockNumber) (time.Time, error) {
	return time.Time{}, nil
}
func (f *fakeChainClient) Logs(ctx context.Context, addr types.Address, from, to types.BlockNumber) ([]chainclient.Log, error) {
	return nil, nil
}
func (f *fakeChainClient) Transaction(ctx context.Context, hash common.Hash) (chainclient.Transaction, error) {
	return chainclient.Transaction{}, nil
}
func (f *fakeChainClient) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return nil, nil
}
func (f *fakeChainClient) CurrentPrice(ctx context.Context, oracle types.Address) (types.BigUnsigned, error) {
	return types.Zero(), nil
}
func (f *fakeChainClient) RemainingBalance(ctx context.Context, postageStamp types.Address, batchID common.Hash) (types.BigUnsigned, error) {
	f.calls++
	return f.balances[batchID.Hex()], nil
}

func TestRefreshUpdatesChangedBalances(t *testing.T) {
	store := testStore(t)
	batchID := "0x8888888888888888888888888888888888888888888888888888888888888888"
	seedBatch(t, store, batchID, 5, 1_000_000)

	chain := &fakeChainClient{balances: map[string]types.BigUnsigned{
		common.HexToHash(batchID).Hex(): types.FromUint64(500_000),
	}}
	engine := NewEngine(store, chain, Config{BlockTimeSeconds: 5})

	updated, err := engine.Refresh(context.Background(), types.Address("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Equal(t, 1, chain.calls)

	batch, ok, err := store.Batch(context.Background(), batchID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "500000", batch.NormalisedBalance.String())

	// A second refresh with an unchanged on-chain balance updates nothing.
	updated, err = engine.Refresh(context.Background(), types.Address("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	require.Equal(t, 0, updated)
}
