package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/registry"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// chunkFetch tracks one (contract, clamped-range) pair the engine must fetch
// logs for within a scan chunk (§4.5 step 2).
type chunkFetch struct {
	contract registry.Contract
	rng      types.Range
	hash     string
	logs     []chainclient.Log
}

// decodedLog is one successfully decoded event, still in memory awaiting
// the chunk's single commit (§5: "logs for a chunk are first materialised
// in memory, then committed").
type decodedLog struct {
	contractAddr types.Address
	blockNumber  uint64
	logIndex     uint
	stamp        *decode.StampEvent
	incentives   *decode.IncentivesEvent
}

type chunkOutcome struct {
	events    uint64
	committed uint64
	skipped   uint64
	advanced  bool
}

// Scan implements §4.5's scan(from_block, to_block) contract: it walks
// [from, to] in fixed-size chunks, consulting the chunk cache and committing
// each chunk's writes atomically, and returns aggregate counts.
func (e *Engine) Scan(ctx context.Context, from, to types.BlockNumber, opts ScanOptions) (Result, error) {
	result := Result{FromBlock: from, ToBlock: to}
	rng := types.Range{From: from, To: to}
	if rng.Empty() {
		return result, nil
	}

	for _, chunk := range rng.Chunks(e.cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return result, errs.Wrap(errs.KindCancellation, err, "scan cancelled")
		}

		outcome, err := e.scanChunk(ctx, chunk, opts)
		if err != nil {
			return result, err
		}
		result.EventsProcessed += outcome.events
		result.ChunksProcessed += outcome.committed
		result.ChunksSkipped += outcome.skipped
		if outcome.advanced {
			result.LastSyncedBlock = chunk.To
		}
	}

	return result, nil
}

// scanChunk processes one fixed-size block range: plan per-contract fetches
// (§4.5 step 2), fan them out (§5), decode everything in memory, then commit
// once (§4.5 steps 3-5).
func (e *Engine) scanChunk(ctx context.Context, chunk types.Range, opts ScanOptions) (chunkOutcome, error) {
	var outcome chunkOutcome

	contracts := e.registry.AllIntersecting(chunk)
	if len(contracts) == 0 {
		return outcome, nil
	}

	fetches := make([]*chunkFetch, 0, len(contracts))
	for _, c := range contracts {
		start, end := c.Window()
		clamped := chunk.Clamp(start, end)
		if clamped.Empty() {
			continue
		}
		hash := chunkHash(c.Address, clamped.From, clamped.To)
		if !opts.Force {
			exists, err := e.store.HasChunk(ctx, hash)
			if err != nil {
				return outcome, errs.Wrap(errs.KindStorage, err, "checking chunk cache")
			}
			if exists {
				outcome.skipped++
				if opts.OnChunk != nil {
					opts.OnChunk(ChunkProgress{ContractAddress: c.Address, From: clamped.From, To: clamped.To, Skipped: true})
				}
				continue
			}
		}
		fetches = append(fetches, &chunkFetch{contract: c, rng: clamped, hash: hash})
	}
	if len(fetches) == 0 {
		return outcome, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanOutLimit())
	for _, f := range fetches {
		f := f
		g.Go(func() error {
			logs, err := e.fetchLogs(gctx, f.contract, f.rng)
			if err != nil {
				return err
			}
			f.logs = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcome, err
	}

	decoded, diagnostics, err := e.decodeChunk(ctx, fetches)
	if err != nil {
		return outcome, err
	}

	tx, err := e.store.BeginChunk(ctx)
	if err != nil {
		return outcome, errs.Wrap(errs.KindStorage, err, "beginning chunk transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	counts := make(map[types.Address]int, len(fetches))
	for _, d := range decoded {
		if d.stamp != nil {
			if err := e.commitStampEvent(ctx, tx, d.stamp); err != nil {
				return outcome, err
			}
		}
		if d.incentives != nil {
			if err := tx.UpsertIncentivesEvent(ctx, d.incentives); err != nil {
				return outcome, errs.Wrap(errs.KindStorage, err, "upserting incentives event")
			}
		}
		counts[d.contractAddr]++
		outcome.events++
	}

	for _, diag := range diagnostics {
		if err := tx.RecordDiagnostic(ctx, diag); err != nil {
			return outcome, errs.Wrap(errs.KindStorage, err, "recording diagnostic")
		}
	}

	for _, f := range fetches {
		if err := tx.RecordChunk(ctx, storage.ChunkRecord{
			ChunkHash:       f.hash,
			ContractAddress: f.contract.Address,
			FromBlock:       f.rng.From,
			ToBlock:         f.rng.To,
			ProcessedAt:     time.Now(),
			EventCount:      counts[f.contract.Address],
		}); err != nil {
			return outcome, errs.Wrap(errs.KindStorage, err, "recording chunk cache row")
		}
	}

	if err := tx.SetLastSyncedBlock(ctx, chunk.To); err != nil {
		return outcome, errs.Wrap(errs.KindStorage, err, "advancing last synced block")
	}

	if err := tx.Commit(ctx); err != nil {
		return outcome, errs.Wrap(errs.KindStorage, err, "committing chunk")
	}
	committed = true
	outcome.committed = uint64(len(fetches))
	outcome.advanced = true

	if opts.OnChunk != nil {
		for _, f := range fetches {
			opts.OnChunk(ChunkProgress{ContractAddress: f.contract.Address, From: f.rng.From, To: f.rng.To, EventCount: counts[f.contract.Address]})
		}
	}

	return outcome, nil
}

// fetchLogs calls the chain client through the retry policy (§4.1, §4.5
// step 3).
func (e *Engine) fetchLogs(ctx context.Context, c registry.Contract, rng types.Range) ([]chainclient.Log, error) {
	var logs []chainclient.Log
	err := retry.Do(ctx, e.cfg.Retry, nil, func(ctx context.Context) error {
		fetched, err := e.chain.Logs(ctx, c.Address, rng.From, rng.To)
		if err != nil {
			return err
		}
		logs = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// decodeChunk hands every fetched log to the decoder, resolving block
// timestamps through the cache, and returns the chunk's events sorted in
// (block_number, log_index) order (§5 "within a single chunk, events are
// processed in (block_number, log_index) order") plus any diagnostics
// raised along the way (§4.3, §7: decode/attribution faults never abort a
// scan).
func (e *Engine) decodeChunk(ctx context.Context, fetches []*chunkFetch) ([]decodedLog, []storage.Diagnostic, error) {
	var decoded []decodedLog
	var diagnostics []storage.Diagnostic

	for _, f := range fetches {
		for _, raw := range f.logs {
			ts, err := e.blockTimestamp(ctx, types.BlockNumber(raw.BlockNumber))
			if err != nil {
				return nil, nil, errs.Wrap(errs.KindTransport, err, "fetching block timestamp")
			}

			coord := decode.Coordinates{
				BlockTimestamp:  ts,
				ContractFamily:  f.contract.Family,
				ExpectedAddress: f.contract.Address,
			}
			rl := decode.RawLog{
				Address:     raw.Address,
				Topics:      raw.Topics,
				Data:        raw.Data,
				BlockNumber: raw.BlockNumber,
				TxHash:      raw.TxHash,
				LogIndex:    raw.LogIndex,
			}

			ev, mismatch, err := decode.Decode(rl, coord)
			blockNumber := raw.BlockNumber
			txHash := raw.TxHash.Hex()
			logIndex := raw.LogIndex

			switch {
			case mismatch != nil:
				diagnostics = append(diagnostics, storage.Diagnostic{
					Kind:        storage.DiagnosticAttributionMismatch,
					Detail:      mismatch.Error(),
					BlockNumber: &blockNumber,
					TxHash:      &txHash,
					LogIndex:    &logIndex,
					RecordedAt:  time.Now(),
				})
				continue
			case err != nil:
				diagnostics = append(diagnostics, storage.Diagnostic{
					Kind:        storage.DiagnosticParseFailure,
					Detail:      err.Error(),
					BlockNumber: &blockNumber,
					TxHash:      &txHash,
					LogIndex:    &logIndex,
					RecordedAt:  time.Now(),
				})
				continue
			case ev.IsEmpty():
				continue
			}

			decoded = append(decoded, decodedLog{
				contractAddr: f.contract.Address,
				blockNumber:  blockNumber,
				logIndex:     logIndex,
				stamp:        ev.Stamp,
				incentives:   ev.Incentives,
			})
		}
	}

	sort.SliceStable(decoded, func(i, j int) bool {
		if decoded[i].blockNumber != decoded[j].blockNumber {
			return decoded[i].blockNumber < decoded[j].blockNumber
		}
		return decoded[i].logIndex < decoded[j].logIndex
	})

	return decoded, diagnostics, nil
}

// commitStampEvent upserts one stamp event and applies its batch-lifecycle
// mutation and side-channel derivation (§4.4 "Batch upsert", §4.8).
func (e *Engine) commitStampEvent(ctx context.Context, tx storage.ChunkTx, ev *decode.StampEvent) error {
	if err := tx.UpsertStampEvent(ctx, ev); err != nil {
		return errs.Wrap(errs.KindStorage, err, "upserting stamp event")
	}

	switch ev.EventKind {
	case "BatchCreated":
		if err := tx.ApplyBatchCreated(ctx, ev); err != nil {
			return errs.Wrap(errs.KindStorage, err, "applying BatchCreated")
		}
	case "BatchTopUp":
		if ev.BatchID != nil && ev.NormalisedBalance != nil {
			applied, err := tx.ApplyBatchTopUp(ctx, *ev.BatchID, *ev.NormalisedBalance)
			if err != nil {
				return errs.Wrap(errs.KindStorage, err, "applying BatchTopUp")
			}
			if !applied {
				if err := recordReplayNoOp(ctx, tx, ev, fmt.Sprintf("BatchTopUp for unknown batch %s", *ev.BatchID)); err != nil {
					return err
				}
			}
		}
	case "BatchDepthIncrease":
		if ev.BatchID != nil && ev.Depth != nil && ev.NormalisedBalance != nil {
			applied, err := tx.ApplyBatchDepthIncrease(ctx, *ev.BatchID, *ev.Depth, *ev.NormalisedBalance)
			if err != nil {
				return errs.Wrap(errs.KindStorage, err, "applying BatchDepthIncrease")
			}
			if !applied {
				if err := recordReplayNoOp(ctx, tx, ev, fmt.Sprintf("BatchDepthIncrease for unknown batch %s", *ev.BatchID)); err != nil {
					return err
				}
			}
		}
	}

	if err := e.applySideChannel(ctx, tx, ev); err != nil {
		return err
	}
	return nil
}

func recordReplayNoOp(ctx context.Context, tx storage.ChunkTx, ev *decode.StampEvent, detail string) error {
	txHash := ev.TxHash
	logIndex := ev.LogIndex
	blockNumber := ev.BlockNumber
	if err := tx.RecordDiagnostic(ctx, storage.Diagnostic{
		Kind:        storage.DiagnosticBatchReplayNoOp,
		Detail:      detail,
		BlockNumber: &blockNumber,
		TxHash:      &txHash,
		LogIndex:    &logIndex,
		RecordedAt:  time.Now(),
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "recording batch replay no-op diagnostic")
	}
	return nil
}
