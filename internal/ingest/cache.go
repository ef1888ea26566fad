package ingest

import (
	"context"
	"time"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/types"
)

// blockTimestamp resolves a block's timestamp through the process-wide cache
// (§9), falling back to a retry-governed chain-client call (§4.1, §6).
func (e *Engine) blockTimestamp(ctx context.Context, b types.BlockNumber) (time.Time, error) {
	if ts, ok := e.blockTimestamps.Get(b); ok {
		return ts, nil
	}
	var ts time.Time
	err := retry.Do(ctx, e.cfg.Retry, nil, func(ctx context.Context) error {
		t, err := e.chain.BlockTimestamp(ctx, b)
		if err != nil {
			return err
		}
		ts = t
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	e.blockTimestamps.Add(b, ts)
	return ts, nil
}

// transactionDetail resolves a transaction's details through the cache,
// keyed by hash (§4.5 step 4 "cached in the tx-detail table").
func (e *Engine) transactionDetail(ctx context.Context, txHash string) (chainclient.Transaction, error) {
	if tx, ok := e.txDetails.Get(txHash); ok {
		return tx, nil
	}
	hash := commonHash(txHash)
	var tx chainclient.Transaction
	err := retry.Do(ctx, e.cfg.Retry, nil, func(ctx context.Context) error {
		t, err := e.chain.Transaction(ctx, hash)
		if err != nil {
			return err
		}
		tx = t
		return nil
	})
	if err != nil {
		return chainclient.Transaction{}, err
	}
	e.txDetails.Add(txHash, tx)
	return tx, nil
}

// isContract decides contract-ness via get_code, cached per address (§4.5
// step 4, §4.8 "Contract-ness is tested once and cached").
func (e *Engine) isContract(ctx context.Context, addr types.Address) (bool, error) {
	if is, ok := e.contractness.Get(addr); ok {
		return is, nil
	}
	var code []byte
	err := retry.Do(ctx, e.cfg.Retry, nil, func(ctx context.Context) error {
		c, err := e.chain.Code(ctx, addr.Common())
		if err != nil {
			return err
		}
		code = c
		return nil
	})
	if err != nil {
		return false, err
	}
	is := len(code) > 0
	e.contractness.Add(addr, is)
	return is, nil
}
