package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/expiry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/storage/sqlite"
	"swarm-indexer/internal/types"
)

func testSurface(t *testing.T) (*Surface, *sqlite.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.Open(filepath.Join(dir, "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	expEngine := expiry.NewEngine(store, nil, expiry.Config{BlockTimeSeconds: 5})
	return NewSurface(store, expEngine), store
}

func seed(t *testing.T, store *sqlite.Store) (owner, sender types.Address, batchID string) {
	t.Helper()
	ctx := context.Background()
	owner = types.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	sender = types.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	batchID = "0x" + repeat("33", 32)
	nb := types.FromUint64(1_000_000)
	depth := uint8(4)

	tx, err := store.BeginChunk(ctx)
	require.NoError(t, err)

	ev := &decode.StampEvent{
		EventKind:         "BatchCreated",
		BatchID:           &batchID,
		BlockNumber:       10,
		BlockTimestamp:    time.Unix(1_700_000_000, 0).UTC(),
		TxHash:            "0x" + repeat("ab", 32),
		LogIndex:          0,
		ContractFamily:    types.FamilyPostageStamp,
		ContractAddress:   types.Address("0x2222222222222222222222222222222222222222"),
		Owner:             &owner,
		Depth:             &depth,
		NormalisedBalance: &nb,
	}
	require.NoError(t, tx.UpsertStampEvent(ctx, ev))
	require.NoError(t, tx.ApplyBatchCreated(ctx, ev))

	_, err = tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) {
		rec.Address = sender
		rec.Classification = storage.ClassificationFunder
		rec.IsFunder = true
		rec.TransactionCount = 1
		rec.StampIDs = []string{batchID}
		rec.FirstSeen = ev.BlockTimestamp
		rec.LastSeen = ev.BlockTimestamp
	})
	require.NoError(t, err)
	_, err = tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) {
		rec.Address = owner
		rec.Classification = storage.ClassificationBuyer
		rec.StampIDs = []string{batchID}
		rec.FirstSeen = ev.BlockTimestamp
		rec.LastSeen = ev.BlockTimestamp
	})
	require.NoError(t, err)
	require.NoError(t, tx.UpsertInteraction(ctx, storage.AddressInteraction{
		From:           sender,
		To:             owner,
		TxHash:         ev.TxHash,
		BlockNumber:    ev.BlockNumber,
		BlockTimestamp: ev.BlockTimestamp,
		RelatedToStamp: true,
		StampBatchID:   &batchID,
	}))
	require.NoError(t, tx.SetLastSyncedBlock(ctx, 10))
	require.NoError(t, tx.Commit(ctx))
	return owner, sender, batchID
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestSummaryReturnsSeededEvent(t *testing.T) {
	surface, store := testSurface(t)
	_, _, _ = seed(t, store)

	rows, err := surface.Summary(context.Background(), storage.SummaryFilter{
		From: time.Unix(0, 0),
		To:   time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "BatchCreated", rows[0].EventKind)
}

func TestBatchStatusSortedByExpiry(t *testing.T) {
	surface, store := testSurface(t)
	_, _, batchID := seed(t, store)

	rows, err := surface.BatchStatus(context.Background(), types.FromUint64(100), time.Now(), SortByExpiryAt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, batchID, rows[0].BatchID)
	require.EqualValues(t, 16, rows[0].Chunks)
}

func TestAddressSummaryReportsDelegation(t *testing.T) {
	surface, store := testSurface(t)
	owner, sender, _ := seed(t, store)

	rows, err := surface.AddressSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byAddr := make(map[types.Address]storage.AddressSummaryRow, 2)
	for _, r := range rows {
		byAddr[r.Address] = r
	}

	require.True(t, byAddr[owner].HasDelegation)
	require.EqualValues(t, 1, byAddr[owner].AsOwnerCount)
	require.True(t, byAddr[sender].HasDelegation)
	require.EqualValues(t, 1, byAddr[sender].AsSenderCount)
}

func TestExpiryAnalyticsAggregatesBatch(t *testing.T) {
	surface, store := testSurface(t)
	seed(t, store)

	buckets, err := surface.ExpiryAnalytics(context.Background(), types.FromUint64(100), time.Now(), expiry.PeriodMonth)
	require.NoError(t, err)
	require.NotEmpty(t, buckets)
}
