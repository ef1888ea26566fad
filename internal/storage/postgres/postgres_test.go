package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// These tests exercise a real Postgres cluster and are skipped unless
// SWARMIDX_TEST_POSTGRES_DSN is set (§4.4: the backend has no in-process
// fake, unlike sqlite's file-per-test story), mirroring Outblock-flowindex's
// own integration-test gating around a live database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SWARMIDX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SWARMIDX_TEST_POSTGRES_DSN not set; skipping postgres integration tests")
	}
	ctx := context.Background()
	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestChunkTxCommitsBatchLifecycleAtomically(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	owner := types.Address("0x1111111111111111111111111111111111111111")
	depth := uint8(20)
	bucketDepth := uint8(16)
	immutable := false
	balance := types.FromUint64(1_000_000)
	batchID := "0xpgabc123"

	created := &decode.StampEvent{
		EventKind:         "BatchCreated",
		BatchID:           &batchID,
		BlockNumber:       100,
		BlockTimestamp:    time.Unix(1_700_000_000, 0).UTC(),
		TxHash:            "0xpgtx1",
		LogIndex:          0,
		ContractFamily:    types.FamilyPostageStamp,
		ContractAddress:   types.Address("0x2222222222222222222222222222222222222222"),
		Owner:             &owner,
		Depth:             &depth,
		BucketDepth:       &bucketDepth,
		Immutable:         &immutable,
		NormalisedBalance: &balance,
	}

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertStampEvent(ctx, created))
	require.NoError(t, tx.ApplyBatchCreated(ctx, created))
	require.NoError(t, tx.SetLastSyncedBlock(ctx, types.BlockNumber(100)))
	require.NoError(t, tx.Commit(ctx))

	batch, ok, err := store.Batch(ctx, batchID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner, *batch.Owner)
	require.Equal(t, depth, *batch.Depth)
	require.Equal(t, "1000000", batch.NormalisedBalance.String())

	last, ok, err := store.LastSyncedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.BlockNumber(100), last)
}

func TestChunkTxRollbackDiscardsEverything(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	batchID := "0xpgrollback"
	ev := &decode.StampEvent{
		EventKind:       "BatchTopUp",
		BatchID:         &batchID,
		BlockNumber:     1,
		BlockTimestamp:  time.Unix(1, 0).UTC(),
		TxHash:          "0xpgtxrb",
		LogIndex:        0,
		ContractFamily:  types.FamilyPostageStamp,
		ContractAddress: types.Address("0x3333333333333333333333333333333333333333"),
	}

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertStampEvent(ctx, ev))
	require.NoError(t, tx.Rollback(ctx))

	var count int
	err = store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stamp_events WHERE tx_hash = $1`, "0xpgtxrb").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestApplyBatchTopUpIsNoOpWhenBatchMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	applied, err := tx.ApplyBatchTopUp(ctx, "0xpgdoesnotexist", types.FromUint64(5))
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, tx.Commit(ctx))
}

func TestUpsertAddressAccumulatesAcrossChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	addr := types.Address("0x4444444444444444444444444444444444444444")

	mutate := func(spend uint64) func(*storage.AddressRecord) {
		return func(rec *storage.AddressRecord) {
			rec.Address = addr
			if rec.Classification == "" {
				rec.Classification = storage.ClassificationBuyer
			}
			rec.TotalAmountSpent = rec.TotalAmountSpent.Add(types.FromUint64(spend))
			rec.TotalStampsPurchased++
			rec.LastSeen = time.Unix(int64(spend), 0).UTC()
			if rec.FirstSeen.IsZero() {
				rec.FirstSeen = rec.LastSeen
			}
		}
	}

	tx1, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	_, err = tx1.UpsertAddress(ctx, mutate(10))
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	_, err = tx2.UpsertAddress(ctx, mutate(20))
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	rec, ok, err := store.Address(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "30", rec.TotalAmountSpent.String())
	require.EqualValues(t, 2, rec.TotalStampsPurchased)
}

func TestSetTopFundersCompareAndSet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	addr := types.Address("0x5555555555555555555555555555555555555555")

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) { rec.Address = addr })
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	funders := []storage.TopFunder{{Address: types.Address("0x6666666666666666666666666666666666666666"), Amount: types.FromUint64(100)}}
	ok, err := store.SetTopFunders(ctx, addr, funders, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.SetTopFunders(ctx, addr, funders, 0)
	require.NoError(t, err)
	require.False(t, ok, "stale version must be rejected")

	rec, found, err := store.Address(ctx, addr)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, rec.TopFunders, 1)
	require.EqualValues(t, 1, rec.Version)
}

func TestExportImportRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	round := uint64(42)
	stake := types.FromUint64(7)
	overlay := "0xpgoverlay"
	incentivesEv := &decode.IncentivesEvent{
		EventKind:       "StakeUpdated",
		BlockNumber:     200,
		BlockTimestamp:  time.Unix(1_700_000_100, 0).UTC(),
		TxHash:          "0xpgtx2",
		LogIndex:        1,
		ContractFamily:  types.FamilyStakeRegistry,
		ContractAddress: types.Address("0x7777777777777777777777777777777777777777"),
		RoundNumber:     &round,
		Overlay:         &overlay,
		Stake:           &stake,
	}

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertIncentivesEvent(ctx, incentivesEv))
	require.NoError(t, tx.Commit(ctx))

	var exported []storage.ExportedEvent
	require.NoError(t, store.ExportEvents(ctx, 0, 1_000_000, func(e storage.ExportedEvent) error {
		exported = append(exported, e)
		return nil
	}))
	require.NotEmpty(t, exported)

	var found *decode.IncentivesEvent
	for _, e := range exported {
		if e.Incentives != nil && e.Incentives.TxHash == "0xpgtx2" {
			found = e.Incentives
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "7", found.Stake.String())
}

func TestDiagnosticsOrderedMostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordDiagnostic(ctx, storage.Diagnostic{
		Kind: storage.DiagnosticParseFailure, Detail: "pg-first", RecordedAt: time.Unix(100, 0).UTC(),
	}))
	require.NoError(t, store.RecordDiagnostic(ctx, storage.Diagnostic{
		Kind: storage.DiagnosticAttributionMismatch, Detail: "pg-second", RecordedAt: time.Unix(200, 0).UTC(),
	}))

	diags, err := store.Diagnostics(ctx, 10)
	require.NoError(t, err)
	require.True(t, len(diags) >= 2)
	require.Equal(t, "pg-second", diags[0].Detail)
}
