// Package postgres implements storage.Store against a networked Postgres
// cluster (§4.4), grounded in Outblock-flowindex's repository package:
// pgx's native pgxpool.Pool rather than the database/sql compatibility
// layer, $N placeholders, and INSERT ... ON CONFLICT upserts.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/storage/migrate"
	postgresmigrations "swarm-indexer/internal/storage/migrate/postgres"
	"swarm-indexer/internal/types"
)

// Store is a storage.Store backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dbURL (a postgres:// connection string) and configures
// the pool from its query parameters, matching Outblock-flowindex's
// pgxpool.ParseConfig-then-NewWithConfig shape.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- migrations --------------------------------------------------------------

type migrationBackend struct{ pool *pgxpool.Pool }

func (m migrationBackend) EnsureVersionTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`)
	return err
}

func (m migrationBackend) AppliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (m migrationBackend) Apply(ctx context.Context, version, sqlText string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, sqlText); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, version, time.Now()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := migrate.Run(ctx, migrationBackend{pool: s.pool}, postgresmigrations.FS)
	return err
}

// --- scalar helpers ------------------------------------------------------------
//
// pgx scans NULL directly into a Go pointer destination (no sql.Null*
// wrapper needed); amounts still round-trip through decimal strings since
// types.BigUnsigned is arbitrary precision and the schema stores them as
// TEXT, matching the sqlite backend's column shape (§4.4).

func amountArg(a *types.BigUnsigned) any {
	if a == nil {
		return nil
	}
	return a.String()
}

func addrArg(a *types.Address) any {
	if a == nil {
		return nil
	}
	return string(*a)
}

func ptrAmount(s *string) *types.BigUnsigned {
	if s == nil {
		return nil
	}
	v, err := types.ParseBigUnsigned(*s)
	if err != nil {
		return nil
	}
	return &v
}

func ptrAddr(s *string) *types.Address {
	if s == nil {
		return nil
	}
	v := types.Address(*s)
	return &v
}

// u64Arg/u8Arg widen unsigned integers to the signed BIGINT/INTEGER columns
// pgx's default type map knows how to encode; pgx has no built-in codec for
// *uint64/*uint8 query arguments.
func u64Arg(u *uint64) any {
	if u == nil {
		return nil
	}
	return int64(*u)
}

func u8Arg(u *uint8) any {
	if u == nil {
		return nil
	}
	return int32(*u)
}

func ptrU64(n *int64) *uint64 {
	if n == nil {
		return nil
	}
	v := uint64(*n)
	return &v
}

func ptrU8(n *int32) *uint8 {
	if n == nil {
		return nil
	}
	v := uint8(*n)
	return &v
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Timestamps are stored as epoch-second BIGINT columns rather than
// TIMESTAMPTZ, matching the sqlite backend's schema column-for-column so
// export/import and the chunk cache behave identically across backends.
func unixOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOf(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func timeOfPtr(n *int64) time.Time {
	if n == nil {
		return time.Time{}
	}
	return timeOf(*n)
}

// --- reads ---------------------------------------------------------------------

func (s *Store) LastSyncedBlock(ctx context.Context) (types.BlockNumber, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_metadata WHERE key = 'last_synced_block'`).Scan(&v)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, false, fmt.Errorf("postgres: parse last_synced_block %q: %w", v, err)
	}
	return types.BlockNumber(n), true, nil
}

func (s *Store) HasChunk(ctx context.Context, chunkHash string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM chunk_cache WHERE chunk_hash = $1`, chunkHash).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const batchSelectColumns = `batch_id, owner, payer, depth, bucket_depth, immutable, normalised_balance, block_number, created_at, contract_family`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (storage.BatchRecord, error) {
	var (
		batchID, contractFamily         string
		owner, payer, normalisedBalance *string
		depth, bucketDepth              *int32
		immutable                       *bool
		blockNumber                     int64
		createdAt                       *int64
	)
	if err := row.Scan(&batchID, &owner, &payer, &depth, &bucketDepth, &immutable, &normalisedBalance, &blockNumber, &createdAt, &contractFamily); err != nil {
		return storage.BatchRecord{}, err
	}
	var bal types.BigUnsigned
	if normalisedBalance != nil {
		bal, _ = types.ParseBigUnsigned(*normalisedBalance)
	} else {
		bal = types.Zero()
	}
	return storage.BatchRecord{
		BatchID:           batchID,
		Owner:             ptrAddr(owner),
		Payer:             ptrAddr(payer),
		Depth:             ptrU8(depth),
		BucketDepth:       ptrU8(bucketDepth),
		Immutable:         immutable,
		NormalisedBalance: bal,
		BlockNumber:       uint64(blockNumber),
		CreatedAt:         timeOfPtr(createdAt),
		ContractFamily:    types.ContractFamily(contractFamily),
	}, nil
}

func (s *Store) Batches(ctx context.Context) ([]storage.BatchRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+batchSelectColumns+` FROM batches ORDER BY block_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Batch(ctx context.Context, batchID string) (storage.BatchRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchSelectColumns+` FROM batches WHERE batch_id = $1`, batchID)
	b, err := scanBatch(row)
	if err == pgx.ErrNoRows {
		return storage.BatchRecord{}, false, nil
	}
	if err != nil {
		return storage.BatchRecord{}, false, err
	}
	return b, true, nil
}

func (s *Store) NonZeroBalanceBatches(ctx context.Context) ([]storage.BatchRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+batchSelectColumns+` FROM batches WHERE normalised_balance IS NOT NULL AND normalised_balance != '0' ORDER BY block_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SetBatchBalance(ctx context.Context, batchID string, balance types.BigUnsigned) error {
	_, err := s.pool.Exec(ctx, `UPDATE batches SET normalised_balance = $1 WHERE batch_id = $2`, balance.String(), batchID)
	return err
}

func (s *Store) Summary(ctx context.Context, f storage.SummaryFilter) ([]storage.EventSummaryRow, error) {
	out := make(map[string]*storage.EventSummaryRow)

	query := func(table string) error {
		q := fmt.Sprintf(`SELECT event_kind, contract_family, COUNT(*) FROM %s WHERE block_timestamp BETWEEN $1 AND $2`, table)
		args := []any{unixOf(f.From), unixOf(f.To)}
		n := 2
		if f.Family != nil {
			n++
			q += fmt.Sprintf(` AND contract_family = $%d`, n)
			args = append(args, string(*f.Family))
		}
		if f.EventKind != nil {
			n++
			q += fmt.Sprintf(` AND event_kind = $%d`, n)
			args = append(args, *f.EventKind)
		}
		if f.BatchIDPrefix != nil && table == "stamp_events" {
			n++
			q += fmt.Sprintf(` AND batch_id LIKE $%d`, n)
			args = append(args, *f.BatchIDPrefix+"%")
		}
		q += ` GROUP BY event_kind, contract_family`

		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var kind, family string
			var count int64
			if err := rows.Scan(&kind, &family, &count); err != nil {
				return err
			}
			key := family + "/" + kind
			if row, ok := out[key]; ok {
				row.Count += uint64(count)
			} else {
				out[key] = &storage.EventSummaryRow{EventKind: kind, Family: types.ContractFamily(family), Count: uint64(count)}
			}
		}
		return rows.Err()
	}

	if f.BatchIDPrefix == nil {
		if err := query("incentives_events"); err != nil {
			return nil, err
		}
	}
	if err := query("stamp_events"); err != nil {
		return nil, err
	}

	result := make([]storage.EventSummaryRow, 0, len(out))
	for _, row := range out {
		result = append(result, *row)
	}
	return result, nil
}

const addressSelectColumns = `address, stamp_ids, total_stamps_purchased, total_amount_spent, top_funders, is_funder, funded_addresses, first_seen, last_seen, first_block, last_block, transaction_count, classification, is_contract, label, notes, version`

func scanAddress(row rowScanner) (storage.AddressRecord, error) {
	var (
		address, stampIDsJSON, totalAmountSpent, topFundersJSON, fundedAddressesJSON, classification string
		totalStampsPurchased, transactionCount, version                                              int64
		isFunder, isContract                                                                         bool
		firstSeen, lastSeen                                                                          *int64
		firstBlock, lastBlock                                                                        int64
		label, notes                                                                                 *string
	)
	if err := row.Scan(&address, &stampIDsJSON, &totalStampsPurchased, &totalAmountSpent, &topFundersJSON,
		&isFunder, &fundedAddressesJSON, &firstSeen, &lastSeen, &firstBlock, &lastBlock, &transactionCount,
		&classification, &isContract, &label, &notes, &version); err != nil {
		return storage.AddressRecord{}, err
	}

	var stampIDs, fundedAddresses []string
	var topFunders []storage.TopFunder
	_ = json.Unmarshal([]byte(stampIDsJSON), &stampIDs)
	_ = json.Unmarshal([]byte(fundedAddressesJSON), &fundedAddresses)
	_ = json.Unmarshal([]byte(topFundersJSON), &topFunders)

	spent, _ := types.ParseBigUnsigned(totalAmountSpent)

	return storage.AddressRecord{
		Address:              types.Address(address),
		StampIDs:             stampIDs,
		TotalStampsPurchased: uint64(totalStampsPurchased),
		TotalAmountSpent:     spent,
		TopFunders:           topFunders,
		IsFunder:             isFunder,
		FundedAddresses:      fundedAddresses,
		FirstSeen:            timeOfPtr(firstSeen),
		LastSeen:             timeOfPtr(lastSeen),
		FirstBlock:           uint64(firstBlock),
		LastBlock:            uint64(lastBlock),
		TransactionCount:     uint64(transactionCount),
		Classification:       storage.AddressClassification(classification),
		IsContract:           isContract,
		Label:                label,
		Notes:                notes,
		Version:              uint64(version),
	}, nil
}

func (s *Store) Address(ctx context.Context, addr types.Address) (storage.AddressRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+addressSelectColumns+` FROM addresses WHERE address = $1`, string(addr))
	rec, err := scanAddress(row)
	if err == pgx.ErrNoRows {
		return storage.AddressRecord{}, false, nil
	}
	if err != nil {
		return storage.AddressRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Addresses(ctx context.Context) ([]storage.AddressRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+addressSelectColumns+` FROM addresses ORDER BY first_seen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.AddressRecord
	for rows.Next() {
		rec, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) InteractionsTo(ctx context.Context, addr types.Address) ([]storage.AddressInteraction, error) {
	rows, err := s.pool.Query(ctx, `SELECT from_address, to_address, tx_hash, amount, block_number, block_timestamp, related_to_stamp, stamp_batch_id FROM address_interactions WHERE to_address = $1`, string(addr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.AddressInteraction
	for rows.Next() {
		var from, to, txHash string
		var amount *string
		var blockNumber int64
		var blockTimestamp int64
		var related bool
		var stampBatchID *string
		if err := rows.Scan(&from, &to, &txHash, &amount, &blockNumber, &blockTimestamp, &related, &stampBatchID); err != nil {
			return nil, err
		}
		out = append(out, storage.AddressInteraction{
			From:           types.Address(from),
			To:             types.Address(to),
			TxHash:         txHash,
			Amount:         ptrAmount(amount),
			BlockNumber:    uint64(blockNumber),
			BlockTimestamp: timeOf(blockTimestamp),
			RelatedToStamp: related,
			StampBatchID:   stampBatchID,
		})
	}
	return out, rows.Err()
}

func (s *Store) SetTopFunders(ctx context.Context, addr types.Address, funders []storage.TopFunder, expectedVersion uint64) (bool, error) {
	payload, err := json.Marshal(funders)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE addresses SET top_funders = $1, version = version + 1 WHERE address = $2 AND version = $3`, string(payload), string(addr), int64(expectedVersion))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RecordDiagnostic(ctx context.Context, d storage.Diagnostic) error {
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
	_, err := s.pool.Exec(ctx, `INSERT INTO diagnostics (kind, detail, block_number, tx_hash, log_index, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(d.Kind), d.Detail, blockNumber, d.TxHash, logIndex, unixOf(d.RecordedAt))
	return err
}

func (s *Store) Diagnostics(ctx context.Context, limit int) ([]storage.Diagnostic, error) {
	rows, err := s.pool.Query(ctx, `SELECT kind, detail, block_number, tx_hash, log_index, recorded_at FROM diagnostics ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Diagnostic
	for rows.Next() {
		var kind, detail string
		var blockNumber *int64
		var logIndex *int64
		var txHash *string
		var recordedAt int64
		if err := rows.Scan(&kind, &detail, &blockNumber, &txHash, &logIndex, &recordedAt); err != nil {
			return nil, err
		}
		d := storage.Diagnostic{Kind: storage.DiagnosticKind(kind), Detail: detail, TxHash: txHash, RecordedAt: timeOf(recordedAt)}
		if blockNumber != nil {
			v := uint64(*blockNumber)
			d.BlockNumber = &v
		}
		if logIndex != nil {
			v := uint(*logIndex)
			d.LogIndex = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const stampSelectColumns = `event_kind, batch_id, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address, from_address, data_blob, pot_recipient, pot_total_amount, price, copy_index, copy_batch_id`

func scanStampEvent(row rowScanner) (*decode.StampEvent, error) {
	var (
		eventKind, txHash, contractFamily, contractAddress string
		batchID, fromAddress, potRecipient                 *string
		potTotalAmount, price, copyBatchID                 *string
		blockNumber                                        int64
		blockTimestamp                                     int64
		logIndex                                           int64
		dataBlob                                           []byte
		copyIndex                                          *int64
	)
	if err := row.Scan(&eventKind, &batchID, &blockNumber, &blockTimestamp, &txHash, &logIndex, &contractFamily, &contractAddress,
		&fromAddress, &dataBlob, &potRecipient, &potTotalAmount, &price, &copyIndex, &copyBatchID); err != nil {
		return nil, err
	}
	var copyIdxU64 *uint64
	if copyIndex != nil {
		v := uint64(*copyIndex)
		copyIdxU64 = &v
	}
	return &decode.StampEvent{
		EventKind:       eventKind,
		BatchID:         batchID,
		BlockNumber:     uint64(blockNumber),
		BlockTimestamp:  timeOf(blockTimestamp),
		TxHash:          txHash,
		LogIndex:        uint(logIndex),
		ContractFamily:  types.ContractFamily(contractFamily),
		ContractAddress: types.Address(contractAddress),
		FromAddress:     ptrAddr(fromAddress),
		DataBlob:        dataBlob,
		PotRecipient:    ptrAddr(potRecipient),
		PotTotalAmount:  ptrAmount(potTotalAmount),
		Price:           ptrAmount(price),
		CopyIndex:       copyIdxU64,
		CopyBatchID:     copyBatchID,
	}, nil
}

const incentivesSelectColumns = `event_kind, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address, round_number, phase, owner, overlay, stake, commit_count, reveal_count, chunk_count, truth, anchor, redundancy, price, depth, hash, obfuscated_hash, amount, winner_owner, winner_overlay, winner_stake, winner_stake_density, winner_hash, winner_depth`

func scanIncentivesEvent(row rowScanner) (*decode.IncentivesEvent, error) {
	var (
		eventKind, txHash, contractFamily, contractAddress string
		blockNumber, logIndex                              int64
		blockTimestamp                                     int64
		roundNumber, commitCount, revealCount, chunkCount  *int64
		phase, owner, overlay, stake                       *string
		truth, anchor                                      *string
		redundancy, depth, winnerDepth                     *int32
		price, hash, obfuscatedHash, amount                *string
		winnerOwner                                        *string
		winnerOverlay, winnerStake, winnerStakeDensity     *string
		winnerHash                                         *string
	)
	if err := row.Scan(&eventKind, &blockNumber, &blockTimestamp, &txHash, &logIndex, &contractFamily, &contractAddress,
		&roundNumber, &phase, &owner, &overlay, &stake, &commitCount, &revealCount, &chunkCount, &truth, &anchor,
		&redundancy, &price, &depth, &hash, &obfuscatedHash, &amount,
		&winnerOwner, &winnerOverlay, &winnerStake, &winnerStakeDensity, &winnerHash, &winnerDepth); err != nil {
		return nil, err
	}
	toU64 := func(v *int64) *uint64 {
		if v == nil {
			return nil
		}
		u := uint64(*v)
		return &u
	}
	ev := &decode.IncentivesEvent{
		EventKind:          eventKind,
		BlockNumber:        uint64(blockNumber),
		BlockTimestamp:     timeOf(blockTimestamp),
		TxHash:             txHash,
		LogIndex:           uint(logIndex),
		ContractFamily:     types.ContractFamily(contractFamily),
		ContractAddress:    types.Address(contractAddress),
		RoundNumber:        toU64(roundNumber),
		Phase:              phase,
		Owner:              ptrAddr(owner),
		Overlay:            overlay,
		Stake:              ptrAmount(stake),
		CommitCount:        toU64(commitCount),
		RevealCount:        toU64(revealCount),
		ChunkCount:         toU64(chunkCount),
		Truth:              truth,
		Anchor:             anchor,
		Redundancy:         ptrU8(redundancy),
		Price:              ptrAmount(price),
		Depth:              ptrU8(depth),
		Hash:               hash,
		ObfuscatedHash:     obfuscatedHash,
		Amount:             ptrAmount(amount),
		WinnerOwner:        ptrAddr(winnerOwner),
		WinnerOverlay:      winnerOverlay,
		WinnerStake:        ptrAmount(winnerStake),
		WinnerStakeDensity: ptrAmount(winnerStakeDensity),
		WinnerHash:         winnerHash,
		WinnerDepth:        ptrU8(winnerDepth),
	}
	return ev, nil
}

func (s *Store) ExportEvents(ctx context.Context, from, to types.BlockNumber, emit func(storage.ExportedEvent) error) error {
	stampRows, err := s.pool.Query(ctx, `SELECT `+stampSelectColumns+` FROM stamp_events WHERE block_number BETWEEN $1 AND $2 ORDER BY block_number, log_index`, uint64(from), uint64(to))
	if err != nil {
		return err
	}
	defer stampRows.Close()
	for stampRows.Next() {
		ev, err := scanStampEvent(stampRows)
		if err != nil {
			return err
		}
		if err := emit(storage.ExportedEvent{Stamp: ev}); err != nil {
			return err
		}
	}
	if err := stampRows.Err(); err != nil {
		return err
	}

	incRows, err := s.pool.Query(ctx, `SELECT `+incentivesSelectColumns+` FROM incentives_events WHERE block_number BETWEEN $1 AND $2 ORDER BY block_number, log_index`, uint64(from), uint64(to))
	if err != nil {
		return err
	}
	defer incRows.Close()
	for incRows.Next() {
		ev, err := scanIncentivesEvent(incRows)
		if err != nil {
			return err
		}
		if err := emit(storage.ExportedEvent{Incentives: ev}); err != nil {
			return err
		}
	}
	return incRows.Err()
}

func (s *Store) ImportEvents(ctx context.Context, events []storage.ExportedEvent) error {
	tx, err := s.BeginChunk(ctx)
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.Stamp != nil {
			if err := tx.UpsertStampEvent(ctx, e.Stamp); err != nil {
				tx.Rollback(ctx)
				return err
			}
		}
		if e.Incentives != nil {
			if err := tx.UpsertIncentivesEvent(ctx, e.Incentives); err != nil {
				tx.Rollback(ctx)
				return err
			}
		}
	}
	return tx.Commit(ctx)
}
