package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// chunkTx is storage.ChunkTx scoped to a pgx.Tx (§4.4 "Transactional
// boundary").
type chunkTx struct {
	tx pgx.Tx
}

func (s *Store) BeginChunk(ctx context.Context) (storage.ChunkTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &chunkTx{tx: tx}, nil
}

func (c *chunkTx) Commit(ctx context.Context) error { return c.tx.Commit(ctx) }
func (c *chunkTx) Rollback(ctx context.Context) error {
	err := c.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

func (c *chunkTx) UpsertStampEvent(ctx context.Context, ev *decode.StampEvent) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO stamp_events (
			event_kind, batch_id, block_number, block_timestamp, tx_hash, log_index,
			contract_family, contract_address, from_address, data_blob,
			pot_recipient, pot_total_amount, price, copy_index, copy_batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			event_kind = excluded.event_kind, batch_id = excluded.batch_id,
			block_number = excluded.block_number, block_timestamp = excluded.block_timestamp,
			contract_family = excluded.contract_family, contract_address = excluded.contract_address,
			from_address = excluded.from_address, data_blob = excluded.data_blob,
			pot_recipient = excluded.pot_recipient, pot_total_amount = excluded.pot_total_amount,
			price = excluded.price, copy_index = excluded.copy_index, copy_batch_id = excluded.copy_batch_id
	`,
		ev.EventKind, ev.BatchID, int64(ev.BlockNumber), unixOf(ev.BlockTimestamp), ev.TxHash, int64(ev.LogIndex),
		string(ev.ContractFamily), string(ev.ContractAddress), addrArg(ev.FromAddress), ev.DataBlob,
		addrArg(ev.PotRecipient), amountArg(ev.PotTotalAmount), amountArg(ev.Price), u64Arg(ev.CopyIndex), ev.CopyBatchID,
	)
	return err
}

func (c *chunkTx) UpsertIncentivesEvent(ctx context.Context, ev *decode.IncentivesEvent) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO incentives_events (
			event_kind, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address,
			round_number, phase, owner, overlay, stake, commit_count, reveal_count, chunk_count, truth, anchor,
			redundancy, price, depth, hash, obfuscated_hash, amount,
			winner_owner, winner_overlay, winner_stake, winner_stake_density, winner_hash, winner_depth
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			event_kind = excluded.event_kind, block_number = excluded.block_number,
			block_timestamp = excluded.block_timestamp, contract_family = excluded.contract_family,
			contract_address = excluded.contract_address, round_number = excluded.round_number,
			phase = excluded.phase, owner = excluded.owner, overlay = excluded.overlay, stake = excluded.stake,
			commit_count = excluded.commit_count, reveal_count = excluded.reveal_count,
			chunk_count = excluded.chunk_count, truth = excluded.truth, anchor = excluded.anchor,
			redundancy = excluded.redundancy, price = excluded.price, depth = excluded.depth, hash = excluded.hash,
			obfuscated_hash = excluded.obfuscated_hash, amount = excluded.amount,
			winner_owner = excluded.winner_owner, winner_overlay = excluded.winner_overlay,
			winner_stake = excluded.winner_stake, winner_stake_density = excluded.winner_stake_density,
			winner_hash = excluded.winner_hash, winner_depth = excluded.winner_depth
	`,
		ev.EventKind, int64(ev.BlockNumber), unixOf(ev.BlockTimestamp), ev.TxHash, int64(ev.LogIndex), string(ev.ContractFamily), string(ev.ContractAddress),
		u64Arg(ev.RoundNumber), ev.Phase, addrArg(ev.Owner), ev.Overlay, amountArg(ev.Stake),
		u64Arg(ev.CommitCount), u64Arg(ev.RevealCount), u64Arg(ev.ChunkCount), ev.Truth, ev.Anchor,
		u8Arg(ev.Redundancy), amountArg(ev.Price), u8Arg(ev.Depth), ev.Hash, ev.ObfuscatedHash, amountArg(ev.Amount),
		addrArg(ev.WinnerOwner), ev.WinnerOverlay, amountArg(ev.WinnerStake), amountArg(ev.WinnerStakeDensity),
		ev.WinnerHash, u8Arg(ev.WinnerDepth),
	)
	return err
}

func (c *chunkTx) ApplyBatchCreated(ctx context.Context, ev *decode.StampEvent) error {
	if ev.BatchID == nil {
		return fmt.Errorf("postgres: BatchCreated event missing batch_id")
	}
	_, err := c.tx.Exec(ctx, `
		INSERT INTO batches (batch_id, owner, payer, depth, bucket_depth, immutable, normalised_balance, block_number, created_at, contract_family)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (batch_id) DO UPDATE SET
			owner = excluded.owner, payer = excluded.payer, depth = excluded.depth, bucket_depth = excluded.bucket_depth,
			immutable = excluded.immutable, normalised_balance = excluded.normalised_balance,
			block_number = excluded.block_number, created_at = excluded.created_at, contract_family = excluded.contract_family
	`,
		*ev.BatchID, addrArg(ev.Owner), addrArg(ev.Payer), u8Arg(ev.Depth), u8Arg(ev.BucketDepth), ev.Immutable,
		amountArg(ev.NormalisedBalance), int64(ev.BlockNumber), unixOf(ev.BlockTimestamp), string(ev.ContractFamily),
	)
	return err
}

func (c *chunkTx) ApplyBatchTopUp(ctx context.Context, batchID string, newBalance types.BigUnsigned) (bool, error) {
	tag, err := c.tx.Exec(ctx, `UPDATE batches SET normalised_balance = $1 WHERE batch_id = $2`, newBalance.String(), batchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (c *chunkTx) ApplyBatchDepthIncrease(ctx context.Context, batchID string, newDepth uint8, newBalance types.BigUnsigned) (bool, error) {
	tag, err := c.tx.Exec(ctx, `UPDATE batches SET depth = $1, normalised_balance = $2 WHERE batch_id = $3`, int32(newDepth), newBalance.String(), batchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertAddress mirrors the sqlite backend's two-pass resolution: mutate
// runs once on a throwaway probe record to learn the address, then again
// on the loaded-or-zero-value row that actually gets persisted.
func (c *chunkTx) UpsertAddress(ctx context.Context, mutate func(*storage.AddressRecord)) (types.Address, error) {
	var probe storage.AddressRecord
	mutate(&probe)
	addr := probe.Address
	if addr == "" {
		return "", fmt.Errorf("postgres: UpsertAddress: mutate did not set an address")
	}

	row := c.tx.QueryRow(ctx, `SELECT `+addressSelectColumns+` FROM addresses WHERE address = $1`, string(addr))
	rec, err := scanAddress(row)
	if err == pgx.ErrNoRows {
		rec = storage.AddressRecord{Address: addr, Classification: storage.ClassificationBuyer, TotalAmountSpent: types.Zero()}
	} else if err != nil {
		return "", err
	}

	mutate(&rec)

	stampIDsJSON, err := marshalJSON(rec.StampIDs)
	if err != nil {
		return "", err
	}
	fundedJSON, err := marshalJSON(rec.FundedAddresses)
	if err != nil {
		return "", err
	}
	topFundersJSON, err := marshalJSON(rec.TopFunders)
	if err != nil {
		return "", err
	}

	_, err = c.tx.Exec(ctx, `
		INSERT INTO addresses (
			address, stamp_ids, total_stamps_purchased, total_amount_spent, top_funders, is_funder,
			funded_addresses, first_seen, last_seen, first_block, last_block, transaction_count,
			classification, is_contract, label, notes, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (address) DO UPDATE SET
			stamp_ids = excluded.stamp_ids, total_stamps_purchased = excluded.total_stamps_purchased,
			total_amount_spent = excluded.total_amount_spent, top_funders = excluded.top_funders,
			is_funder = excluded.is_funder, funded_addresses = excluded.funded_addresses,
			last_seen = excluded.last_seen, last_block = excluded.last_block,
			transaction_count = excluded.transaction_count, classification = excluded.classification,
			is_contract = excluded.is_contract, label = excluded.label, notes = excluded.notes
	`,
		string(rec.Address), stampIDsJSON, int64(rec.TotalStampsPurchased), rec.TotalAmountSpent.String(), topFundersJSON,
		rec.IsFunder, fundedJSON, unixOf(rec.FirstSeen), unixOf(rec.LastSeen), int64(rec.FirstBlock), int64(rec.LastBlock),
		int64(rec.TransactionCount), string(rec.Classification), rec.IsContract, rec.Label, rec.Notes, int64(rec.Version),
	)
	if err != nil {
		return "", err
	}
	return rec.Address, nil
}

func (c *chunkTx) UpsertInteraction(ctx context.Context, interaction storage.AddressInteraction) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO address_interactions (from_address, to_address, tx_hash, amount, block_number, block_timestamp, related_to_stamp, stamp_batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash, from_address, to_address) DO UPDATE SET
			amount = excluded.amount, related_to_stamp = excluded.related_to_stamp, stamp_batch_id = excluded.stamp_batch_id
	`,
		string(interaction.From), string(interaction.To), interaction.TxHash, amountArg(interaction.Amount),
		int64(interaction.BlockNumber), unixOf(interaction.BlockTimestamp), interaction.RelatedToStamp, interaction.StampBatchID,
	)
	return err
}

func (c *chunkTx) UpsertTxDetail(ctx context.Context, detail storage.TxDetail) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO tx_details (tx_hash, from_address, to_address, value, gas_price, gas_used, block_number, block_timestamp, input_data, is_contract_creation, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash) DO UPDATE SET fetched_at = excluded.fetched_at
	`,
		detail.TxHash, string(detail.From), addrArg(detail.To), amountArg(detail.Value), amountArg(detail.GasPrice),
		u64Arg(detail.GasUsed), int64(detail.BlockNumber), unixOf(detail.BlockTimestamp), detail.InputData, detail.IsContractCreation, unixOf(detail.FetchedAt),
	)
	return err
}

func (c *chunkTx) RecordDiagnostic(ctx context.Context, d storage.Diagnostic) error {
	var logIndex *int64
	if d.LogIndex != nil {
		v := int64(*d.LogIndex)
		logIndex = &v
	}
	var blockNumber *int64
	if d.BlockNumber != nil {
		v := int64(*d.BlockNumber)
		blockNumber = &v
	}
	_, err := c.tx.Exec(ctx, `INSERT INTO diagnostics (kind, detail, block_number, tx_hash, log_index, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(d.Kind), d.Detail, blockNumber, d.TxHash, logIndex, unixOf(d.RecordedAt))
	return err
}

func (c *chunkTx) RecordChunk(ctx context.Context, rec storage.ChunkRecord) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO chunk_cache (chunk_hash, contract_address, from_block, to_block, processed_at, event_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_hash) DO UPDATE SET processed_at = excluded.processed_at, event_count = excluded.event_count
	`,
		rec.ChunkHash, string(rec.ContractAddress), int64(rec.FromBlock), int64(rec.ToBlock), unixOf(rec.ProcessedAt), int64(rec.EventCount),
	)
	return err
}

func (c *chunkTx) SetLastSyncedBlock(ctx context.Context, block types.BlockNumber) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO kv_metadata (key, value, updated_at) VALUES ('last_synced_block', $1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, fmt.Sprintf("%d", uint64(block)), time.Now().Unix())
	return err
}
