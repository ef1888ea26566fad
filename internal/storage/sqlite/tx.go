package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// chunkTx is storage.ChunkTx scoped to a *sql.Tx (§4.4 "Transactional
// boundary").
type chunkTx struct {
	tx *sql.Tx
}

func (s *Store) BeginChunk(ctx context.Context) (storage.ChunkTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &chunkTx{tx: tx}, nil
}

func (c *chunkTx) Commit(ctx context.Context) error { return c.tx.Commit() }
func (c *chunkTx) Rollback(ctx context.Context) error {
	err := c.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func (c *chunkTx) UpsertStampEvent(ctx context.Context, ev *decode.StampEvent) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO stamp_events (
			event_kind, batch_id, block_number, block_timestamp, tx_hash, log_index,
			contract_family, contract_address, from_address, data_blob,
			pot_recipient, pot_total_amount, price, copy_index, copy_batch_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			event_kind = excluded.event_kind, batch_id = excluded.batch_id,
			block_number = excluded.block_number, block_timestamp = excluded.block_timestamp,
			contract_family = excluded.contract_family, contract_address = excluded.contract_address,
			from_address = excluded.from_address, data_blob = excluded.data_blob,
			pot_recipient = excluded.pot_recipient, pot_total_amount = excluded.pot_total_amount,
			price = excluded.price, copy_index = excluded.copy_index, copy_batch_id = excluded.copy_batch_id
	`,
		ev.EventKind, nullStr(ev.BatchID), ev.BlockNumber, unixOf(ev.BlockTimestamp), ev.TxHash, ev.LogIndex,
		string(ev.ContractFamily), string(ev.ContractAddress), nullAddr(ev.FromAddress), ev.DataBlob,
		nullAddr(ev.PotRecipient), nullAmount(ev.PotTotalAmount), nullAmount(ev.Price), nullU64(ev.CopyIndex), nullStr(ev.CopyBatchID),
	)
	return err
}

func (c *chunkTx) UpsertIncentivesEvent(ctx context.Context, ev *decode.IncentivesEvent) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO incentives_events (
			event_kind, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address,
			round_number, phase, owner, overlay, stake, commit_count, reveal_count, chunk_count, truth, anchor,
			redundancy, price, depth, hash, obfuscated_hash, amount,
			winner_owner, winner_overlay, winner_stake, winner_stake_density, winner_hash, winner_depth
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		ev.EventKind, ev.BlockNumber, unixOf(ev.BlockTimestamp), ev.TxHash, ev.LogIndex, string(ev.ContractFamily), string(ev.ContractAddress),
		nullU64(ev.RoundNumber), nullStr(ev.Phase), nullAddr(ev.Owner), nullStr(ev.Overlay), nullAmount(ev.Stake),
		nullU64(ev.CommitCount), nullU64(ev.RevealCount), nullU64(ev.ChunkCount), nullStr(ev.Truth), nullStr(ev.Anchor),
		nullU8(ev.Redundancy), nullAmount(ev.Price), nullU8(ev.Depth), nullStr(ev.Hash), nullStr(ev.ObfuscatedHash), nullAmount(ev.Amount),
		nullAddr(ev.WinnerOwner), nullStr(ev.WinnerOverlay), nullAmount(ev.WinnerStake), nullAmount(ev.WinnerStakeDensity),
		nullStr(ev.WinnerHash), nullU8(ev.WinnerDepth),
	)
	return err
}

func (c *chunkTx) ApplyBatchCreated(ctx context.Context, ev *decode.StampEvent) error {
	if ev.BatchID == nil {
		return fmt.Errorf("sqlite: BatchCreated event missing batch_id")
	}
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO batches (batch_id, owner, payer, depth, bucket_depth, immutable, normalised_balance, block_number, created_at, contract_family)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET
			owner = excluded.owner, payer = excluded.payer, depth = excluded.depth, bucket_depth = excluded.bucket_depth,
			immutable = excluded.immutable, normalised_balance = excluded.normalised_balance,
			block_number = excluded.block_number, created_at = excluded.created_at, contract_family = excluded.contract_family
	`,
		*ev.BatchID, nullAddr(ev.Owner), nullAddr(ev.Payer), nullU8(ev.Depth), nullU8(ev.BucketDepth), nullBool(ev.Immutable),
		nullAmount(ev.NormalisedBalance), ev.BlockNumber, unixOf(ev.BlockTimestamp), string(ev.ContractFamily),
	)
	return err
}

func (c *chunkTx) ApplyBatchTopUp(ctx context.Context, batchID string, newBalance types.BigUnsigned) (bool, error) {
	res, err := c.tx.ExecContext(ctx, `UPDATE batches SET normalised_balance = ? WHERE batch_id = ?`, newBalance.String(), batchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (c *chunkTx) ApplyBatchDepthIncrease(ctx context.Context, batchID string, newDepth uint8, newBalance types.BigUnsigned) (bool, error) {
	res, err := c.tx.ExecContext(ctx, `UPDATE batches SET depth = ?, normalised_balance = ? WHERE batch_id = ?`, int64(newDepth), newBalance.String(), batchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpsertAddress merges mutate's effects into the persisted row for the
// address mutate assigns (§4.8). mutate is called once on an empty probe
// record purely to learn which address is being touched — its other
// field writes on that probe are discarded — then called again on the row
// actually loaded from storage (or a zero-value record if absent), whose
// result is what gets persisted.
func (c *chunkTx) UpsertAddress(ctx context.Context, mutate func(*storage.AddressRecord)) (types.Address, error) {
	var probe storage.AddressRecord
	mutate(&probe)
	addr := probe.Address
	if addr == "" {
		return "", fmt.Errorf("sqlite: UpsertAddress: mutate did not set an address")
	}

	row := c.tx.QueryRowContext(ctx, `SELECT `+addressSelectColumns+` FROM addresses WHERE address = ?`, string(addr))
	rec, err := scanAddress(row)
	if err == sql.ErrNoRows {
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

	_, err = c.tx.ExecContext(ctx, `
		INSERT INTO addresses (
			address, stamp_ids, total_stamps_purchased, total_amount_spent, top_funders, is_funder,
			funded_addresses, first_seen, last_seen, first_block, last_block, transaction_count,
			classification, is_contract, label, notes, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		int64(rec.TransactionCount), string(rec.Classification), rec.IsContract, nullStr(rec.Label), nullStr(rec.Notes), int64(rec.Version),
	)
	if err != nil {
		return "", err
	}
	return rec.Address, nil
}

func (c *chunkTx) UpsertInteraction(ctx context.Context, interaction storage.AddressInteraction) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO address_interactions (from_address, to_address, tx_hash, amount, block_number, block_timestamp, related_to_stamp, stamp_batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash, from_address, to_address) DO UPDATE SET
			amount = excluded.amount, related_to_stamp = excluded.related_to_stamp, stamp_batch_id = excluded.stamp_batch_id
	`,
		string(interaction.From), string(interaction.To), interaction.TxHash, nullAmount(interaction.Amount),
		interaction.BlockNumber, unixOf(interaction.BlockTimestamp), interaction.RelatedToStamp, nullStr(interaction.StampBatchID),
	)
	return err
}

func (c *chunkTx) UpsertTxDetail(ctx context.Context, detail storage.TxDetail) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO tx_details (tx_hash, from_address, to_address, value, gas_price, gas_used, block_number, block_timestamp, input_data, is_contract_creation, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash) DO UPDATE SET fetched_at = excluded.fetched_at
	`,
		detail.TxHash, string(detail.From), nullAddr(detail.To), nullAmount(detail.Value), nullAmount(detail.GasPrice),
		nullU64(detail.GasUsed), detail.BlockNumber, unixOf(detail.BlockTimestamp), detail.InputData, detail.IsContractCreation, unixOf(detail.FetchedAt),
	)
	return err
}

func (c *chunkTx) RecordDiagnostic(ctx context.Context, d storage.Diagnostic) error {
	var logIndex *uint64
	if d.LogIndex != nil {
		v := uint64(*d.LogIndex)
		logIndex = &v
	}
	_, err := c.tx.ExecContext(ctx, `INSERT INTO diagnostics (kind, detail, block_number, tx_hash, log_index, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(d.Kind), d.Detail, nullU64(d.BlockNumber), nullStr(d.TxHash), nullU64(logIndex), unixOf(d.RecordedAt))
	return err
}

func (c *chunkTx) RecordChunk(ctx context.Context, rec storage.ChunkRecord) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO chunk_cache (chunk_hash, contract_address, from_block, to_block, processed_at, event_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chunk_hash) DO UPDATE SET processed_at = excluded.processed_at, event_count = excluded.event_count
	`,
		rec.ChunkHash, string(rec.ContractAddress), uint64(rec.FromBlock), uint64(rec.ToBlock), unixOf(rec.ProcessedAt), rec.EventCount,
	)
	return err
}

func (c *chunkTx) SetLastSyncedBlock(ctx context.Context, block types.BlockNumber) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO kv_metadata (key, value, updated_at) VALUES ('last_synced_block', ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, fmt.Sprintf("%d", uint64(block)), time.Now().Unix())
	return err
}
