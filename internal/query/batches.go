package query

import (
	"context"
	"sort"
	"time"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// BatchSortKey selects which BatchStatusRow field to sort by (§4.7 "Batch
// status ... sortable by any of these").
type BatchSortKey string

const (
	SortByDepth     BatchSortKey = "depth"
	SortByChunks    BatchSortKey = "chunks"
	SortByTTLBlocks BatchSortKey = "ttl_blocks"
	SortByTTLDays   BatchSortKey = "ttl_days"
	SortByExpiryAt  BatchSortKey = "expiry_at"
)

// BatchStatus joins every known batch with a caller-supplied current price
// and returns TTL projections, sorted by sortKey ascending (§4.7 "Batch
// status").
func (s *Surface) BatchStatus(ctx context.Context, price types.BigUnsigned, now time.Time, sortKey BatchSortKey) ([]storage.BatchStatusRow, error) {
	batches, err := s.store.Batches(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "listing batches")
	}

	rows := s.expiry.BatchStatus(now, batches, price)
	sort.Slice(rows, func(i, j int) bool {
		switch sortKey {
		case SortByChunks:
			return rows[i].Chunks < rows[j].Chunks
		case SortByTTLBlocks:
			return rows[i].TTLBlocks < rows[j].TTLBlocks
		case SortByTTLDays:
			return rows[i].TTLDays < rows[j].TTLDays
		case SortByExpiryAt:
			return rows[i].ExpiryAt.Before(rows[j].ExpiryAt)
		case SortByDepth:
			fallthrough
		default:
			return rows[i].Depth < rows[j].Depth
		}
	})
	return rows, nil
}
