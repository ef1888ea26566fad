package expiry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/types"
)

// Refresh implements §4.6's "--refresh" directive: sweep every batch with a
// non-zero stored balance, ask the chain client for its actual on-chain
// remaining balance, and overwrite the stored value when it has moved.
// Analytics never re-ingest on their own (§4.6 "Refresh semantics") — this
// is the one path that reaches back out to the chain from the expiry
// engine. It returns the number of batches whose balance changed.
func (e *Engine) Refresh(ctx context.Context, postageStamp types.Address) (int, error) {
	batches, err := e.store.NonZeroBalanceBatches(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, err, "listing non-zero balance batches")
	}

	updated := 0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return updated, errs.Wrap(errs.KindCancellation, err, "refresh sweep cancelled")
		}

		batchID := common.HexToHash(b.BatchID)
		var balance types.BigUnsigned
		err := retry.Do(ctx, e.cfg.Retry, nil, func(ctx context.Context) error {
			v, err := e.chain.RemainingBalance(ctx, postageStamp, batchID)
			if err != nil {
				return err
			}
			balance = v
			return nil
		})
		if err != nil {
			return updated, errs.Wrap(errs.KindTransport, err, "fetching remaining balance")
		}

		if balance.Cmp(b.NormalisedBalance) == 0 {
			continue
		}
		if err := e.store.SetBatchBalance(ctx, b.BatchID, balance); err != nil {
			return updated, errs.Wrap(errs.KindStorage, err, "updating refreshed batch balance")
		}
		updated++
	}

	return updated, nil
}
