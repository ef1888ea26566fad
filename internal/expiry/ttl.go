package expiry

import (
	"time"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// TTLResult is the per-batch projection produced by §4.6's TTL formula.
type TTLResult struct {
	BatchID           string
	Depth             uint8
	Chunks            uint64
	Price             types.BigUnsigned
	NormalisedBalance types.BigUnsigned
	TTLBlocks         uint64
	TTLSeconds        float64
	TTLDays           float64
	ExpiryAt          time.Time
	Expired           bool
}

// TTL computes one batch's time-to-live under a flat storage price p
// (price per chunk per block, §4.6):
//
//	chunks      = 2^depth
//	ttl_blocks  = floor(normalised_balance / (p * chunks))
//	ttl_seconds = ttl_blocks * block_time_seconds
//	expiry_at   = now + ttl_seconds
//
// All arithmetic up to ttl_blocks is big-integer; only that final division
// truncates (§4.6 "only the final division to ttl_blocks truncates").
func (e *Engine) TTL(batch storage.BatchRecord, price types.BigUnsigned, now time.Time) (TTLResult, error) {
	if batch.Depth == nil {
		return TTLResult{}, errs.New(errs.KindConfig, "batch has no depth; BatchCreated not yet observed")
	}
	if price.IsZero() {
		return TTLResult{}, errs.New(errs.KindConfig, "storage price is zero")
	}

	depth := *batch.Depth
	chunks := uint64(1) << depth
	denominator := price.Mul(types.FromUint64(chunks))

	ttlBlocksBig, ok := batch.NormalisedBalance.DivFloor(denominator)
	if !ok {
		return TTLResult{}, errs.New(errs.KindConfig, "price * chunks denominator is zero")
	}
	ttlBlocks := ttlBlocksBig.Int().Uint64()

	ttlSeconds := float64(ttlBlocks) * e.cfg.BlockTimeSeconds
	ttlDays := ttlSeconds / 86400

	return TTLResult{
		BatchID:           batch.BatchID,
		Depth:             depth,
		Chunks:            chunks,
		Price:             price,
		NormalisedBalance: batch.NormalisedBalance,
		TTLBlocks:         ttlBlocks,
		TTLSeconds:        ttlSeconds,
		TTLDays:           ttlDays,
		ExpiryAt:          now.Add(time.Duration(ttlSeconds * float64(time.Second))),
		Expired:           ttlBlocks == 0,
	}, nil
}

// BatchStatus runs TTL for each batch in batches, keeping their input
// order, for the Batch status query (§4.7). A batch whose TTL cannot be
// computed (no depth yet, or a zero price) is left out.
func (e *Engine) BatchStatus(now time.Time, batches []storage.BatchRecord, price types.BigUnsigned) []storage.BatchStatusRow {
	rows := make([]storage.BatchStatusRow, 0, len(batches))
	for _, b := range batches {
		result, err := e.TTL(b, price, now)
		if err != nil {
			continue
		}
		rows = append(rows, storage.BatchStatusRow{
			BatchID:   result.BatchID,
			Depth:     result.Depth,
			Chunks:    result.Chunks,
			TTLBlocks: result.TTLBlocks,
			TTLDays:   result.TTLDays,
			ExpiryAt:  result.ExpiryAt,
		})
	}
	return rows
}
