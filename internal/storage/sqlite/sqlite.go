// Package sqlite implements storage.Store against the embedded single-file
// engine (§4.4), grounded in Klingon-tech-klingdex's storage package: a
// database/sql handle over github.com/mattn/go-sqlite3, WAL pragmas, and a
// single-writer connection pool since SQLite only supports one writer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/storage/migrate"
	sqlitemigrations "swarm-indexer/internal/storage/migrate/sqlite"
	"swarm-indexer/internal/types"
)

// Store is a storage.Store backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path. It does not
// run migrations; call Migrate explicitly, matching the teacher's
// separation of connect-then-initSchema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- migrations --------------------------------------------------------------

type migrationBackend struct{ db *sql.DB }

func (m migrationBackend) EnsureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`)
	return err
}

func (m migrationBackend) AppliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
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
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, time.Now().Unix()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := migrate.Run(ctx, migrationBackend{db: s.db}, sqlitemigrations.FS)
	return err
}

// --- scalar helpers ------------------------------------------------------------

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullAddr(a *types.Address) any {
	if a == nil {
		return nil
	}
	return string(*a)
}

func nullU8(u *uint8) any {
	if u == nil {
		return nil
	}
	return int64(*u)
}

func nullU64(u *uint64) any {
	if u == nil {
		return nil
	}
	return int64(*u)
}

func nullAmount(a *types.BigUnsigned) any {
	if a == nil {
		return nil
	}
	return a.String()
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

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

func ptrU8(n sql.NullInt64) *uint8 {
	if !n.Valid {
		return nil
	}
	v := uint8(n.Int64)
	return &v
}

func ptrU64(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func ptrStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func ptrAddr(n sql.NullString) *types.Address {
	if !n.Valid {
		return nil
	}
	v := types.Address(n.String)
	return &v
}

func ptrBool(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

func ptrAmount(n sql.NullString) *types.BigUnsigned {
	if !n.Valid {
		return nil
	}
	v, err := types.ParseBigUnsigned(n.String)
	if err != nil {
		return nil
	}
	return &v
}

// --- reads ---------------------------------------------------------------------

func (s *Store) LastSyncedBlock(ctx context.Context) (types.BlockNumber, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_metadata WHERE key = 'last_synced_block'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, false, fmt.Errorf("sqlite: parse last_synced_block %q: %w", v, err)
	}
	return types.BlockNumber(n), true, nil
}

func (s *Store) HasChunk(ctx context.Context, chunkHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chunk_cache WHERE chunk_hash = ?`, chunkHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const batchSelectColumns = `batch_id, owner, payer, depth, bucket_depth, immutable, normalised_balance, block_number, created_at, contract_family`

func scanBatch(row interface {
	Scan(dest ...any) error
}) (storage.BatchRecord, error) {
	var (
		batchID, contractFamily         string
		owner, payer, normalisedBalance sql.NullString
		depth, bucketDepth              sql.NullInt64
		immutable                       sql.NullBool
		blockNumber, createdAt          int64
	)
	if err := row.Scan(&batchID, &owner, &payer, &depth, &bucketDepth, &immutable, &normalisedBalance, &blockNumber, &createdAt, &contractFamily); err != nil {
		return storage.BatchRecord{}, err
	}
	bal, _ := types.ParseBigUnsigned(normalisedBalance.String)
	return storage.BatchRecord{
		BatchID:           batchID,
		Owner:             ptrAddr(owner),
		Payer:             ptrAddr(payer),
		Depth:             ptrU8(depth),
		BucketDepth:       ptrU8(bucketDepth),
		Immutable:         ptrBool(immutable),
		NormalisedBalance: bal,
		BlockNumber:       uint64(blockNumber),
		CreatedAt:         timeOf(createdAt),
		ContractFamily:    types.ContractFamily(contractFamily),
	}, nil
}

func (s *Store) Batches(ctx context.Context) ([]storage.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchSelectColumns+` FROM batches ORDER BY block_number`)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+batchSelectColumns+` FROM batches WHERE batch_id = ?`, batchID)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return storage.BatchRecord{}, false, nil
	}
	if err != nil {
		return storage.BatchRecord{}, false, err
	}
	return b, true, nil
}

func (s *Store) NonZeroBalanceBatches(ctx context.Context) ([]storage.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchSelectColumns+` FROM batches WHERE normalised_balance IS NOT NULL AND normalised_balance != '0' ORDER BY block_number`)
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
	_, err := s.db.ExecContext(ctx, `UPDATE batches SET normalised_balance = ? WHERE batch_id = ?`, balance.String(), batchID)
	return err
}

func (s *Store) Summary(ctx context.Context, f storage.SummaryFilter) ([]storage.EventSummaryRow, error) {
	out := make(map[string]*storage.EventSummaryRow)

	query := func(table string) error {
		q := fmt.Sprintf(`SELECT event_kind, contract_family, COUNT(*) FROM %s WHERE block_timestamp BETWEEN ? AND ?`, table)
		args := []any{unixOf(f.From), unixOf(f.To)}
		if f.Family != nil {
			q += ` AND contract_family = ?`
			args = append(args, string(*f.Family))
		}
		if f.EventKind != nil {
			q += ` AND event_kind = ?`
			args = append(args, *f.EventKind)
		}
		if f.BatchIDPrefix != nil && table == "stamp_events" {
			q += ` AND batch_id LIKE ?`
			args = append(args, *f.BatchIDPrefix+"%")
		}
		q += ` GROUP BY event_kind, contract_family`

		rows, err := s.db.QueryContext(ctx, q, args...)
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

func scanAddress(row interface {
	Scan(dest ...any) error
}) (storage.AddressRecord, error) {
	var (
		address, stampIDsJSON, totalAmountSpent, topFundersJSON, fundedAddressesJSON, classification string
		totalStampsPurchased, transactionCount, version                                              int64
		isFunder, isContract                                                                         bool
		firstSeen, lastSeen, firstBlock, lastBlock                                                   int64
		label, notes                                                                                 sql.NullString
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
		FirstSeen:            timeOf(firstSeen),
		LastSeen:             timeOf(lastSeen),
		FirstBlock:           uint64(firstBlock),
		LastBlock:            uint64(lastBlock),
		TransactionCount:     uint64(transactionCount),
		Classification:       storage.AddressClassification(classification),
		IsContract:           isContract,
		Label:                ptrStr(label),
		Notes:                ptrStr(notes),
		Version:              uint64(version),
	}, nil
}

func (s *Store) Address(ctx context.Context, addr types.Address) (storage.AddressRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+addressSelectColumns+` FROM addresses WHERE address = ?`, string(addr))
	rec, err := scanAddress(row)
	if err == sql.ErrNoRows {
		return storage.AddressRecord{}, false, nil
	}
	if err != nil {
		return storage.AddressRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Addresses(ctx context.Context) ([]storage.AddressRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+addressSelectColumns+` FROM addresses ORDER BY first_seen`)
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
	rows, err := s.db.QueryContext(ctx, `SELECT from_address, to_address, tx_hash, amount, block_number, block_timestamp, related_to_stamp, stamp_batch_id FROM address_interactions WHERE to_address = ?`, string(addr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.AddressInteraction
	for rows.Next() {
		var from, to, txHash string
		var amount sql.NullString
		var blockNumber, blockTimestamp int64
		var related bool
		var stampBatchID sql.NullString
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
			StampBatchID:   ptrStr(stampBatchID),
		})
	}
	return out, rows.Err()
}

func (s *Store) SetTopFunders(ctx context.Context, addr types.Address, funders []storage.TopFunder, expectedVersion uint64) (bool, error) {
	payload, err := json.Marshal(funders)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE addresses SET top_funders = ?, version = version + 1 WHERE address = ? AND version = ?`, string(payload), string(addr), int64(expectedVersion))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) RecordDiagnostic(ctx context.Context, d storage.Diagnostic) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO diagnostics (kind, detail, block_number, tx_hash, log_index, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(d.Kind), d.Detail, nullU64(d.BlockNumber), nullStr(d.TxHash), nullU64(func() *uint64 {
			if d.LogIndex == nil {
				return nil
			}
			v := uint64(*d.LogIndex)
			return &v
		}()), unixOf(d.RecordedAt))
	return err
}

func (s *Store) Diagnostics(ctx context.Context, limit int) ([]storage.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, detail, block_number, tx_hash, log_index, recorded_at FROM diagnostics ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Diagnostic
	for rows.Next() {
		var kind, detail string
		var blockNumber, logIndex sql.NullInt64
		var txHash sql.NullString
		var recordedAt int64
		if err := rows.Scan(&kind, &detail, &blockNumber, &txHash, &logIndex, &recordedAt); err != nil {
			return nil, err
		}
		d := storage.Diagnostic{Kind: storage.DiagnosticKind(kind), Detail: detail, BlockNumber: ptrU64(blockNumber), TxHash: ptrStr(txHash), RecordedAt: timeOf(recordedAt)}
		if logIndex.Valid {
			li := uint(logIndex.Int64)
			d.LogIndex = &li
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanStampEvent(rows *sql.Rows) (*decode.StampEvent, error) {
	var (
		eventKind, txHash, contractFamily, contractAddress string
		batchID, fromAddress, potRecipient                 sql.NullString
		potTotalAmount, price, copyBatchID                 sql.NullString
		blockNumber                                        int64
		blockTimestamp                                     int64
		logIndex                                           int64
		dataBlob                                           []byte
		copyIndex                                          sql.NullInt64
	)
	if err := rows.Scan(&eventKind, &batchID, &blockNumber, &blockTimestamp, &txHash, &logIndex, &contractFamily, &contractAddress,
		&fromAddress, &dataBlob, &potRecipient, &potTotalAmount, &price, &copyIndex, &copyBatchID); err != nil {
		return nil, err
	}
	ev := &decode.StampEvent{
		EventKind:       eventKind,
		BatchID:         ptrStr(batchID),
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
		CopyIndex:       ptrU64(copyIndex),
		CopyBatchID:     ptrStr(copyBatchID),
	}
	return ev, nil
}

const incentivesSelectQuery = `SELECT event_kind, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address, round_number, phase, owner, overlay, stake, commit_count, reveal_count, chunk_count, truth, anchor, redundancy, price, depth, hash, obfuscated_hash, amount, winner_owner, winner_overlay, winner_stake, winner_stake_density, winner_hash, winner_depth FROM incentives_events`

func scanIncentivesEvent(rows *sql.Rows) (*decode.IncentivesEvent, error) {
	var (
		eventKind, txHash, contractFamily, contractAddress string
		blockNumber, blockTimestamp, logIndex              int64
		roundNumber                                        sql.NullInt64
		phase, owner, overlay                              sql.NullString
		stake                                              sql.NullString
		commitCount, revealCount, chunkCount               sql.NullInt64
		truth, anchor                                      sql.NullString
		redundancy                                         sql.NullInt64
		price                                              sql.NullString
		depth                                              sql.NullInt64
		hash, obfuscatedHash                               sql.NullString
		amount                                             sql.NullString
		winnerOwner                                        sql.NullString
		winnerOverlay                                      sql.NullString
		winnerStake, winnerStakeDensity                    sql.NullString
		winnerHash                                         sql.NullString
		winnerDepth                                        sql.NullInt64
	)
	if err := rows.Scan(&eventKind, &blockNumber, &blockTimestamp, &txHash, &logIndex, &contractFamily, &contractAddress,
		&roundNumber, &phase, &owner, &overlay, &stake, &commitCount, &revealCount, &chunkCount, &truth, &anchor,
		&redundancy, &price, &depth, &hash, &obfuscatedHash, &amount,
		&winnerOwner, &winnerOverlay, &winnerStake, &winnerStakeDensity, &winnerHash, &winnerDepth); err != nil {
		return nil, err
	}
	ev := &decode.IncentivesEvent{
		EventKind:          eventKind,
		BlockNumber:        uint64(blockNumber),
		BlockTimestamp:     timeOf(blockTimestamp),
		TxHash:             txHash,
		LogIndex:           uint(logIndex),
		ContractFamily:     types.ContractFamily(contractFamily),
		ContractAddress:    types.Address(contractAddress),
		RoundNumber:        ptrU64(roundNumber),
		Phase:              ptrStr(phase),
		Owner:              ptrAddr(owner),
		Overlay:            ptrStr(overlay),
		Stake:              ptrAmount(stake),
		CommitCount:        ptrU64(commitCount),
		RevealCount:        ptrU64(revealCount),
		ChunkCount:         ptrU64(chunkCount),
		Truth:              ptrStr(truth),
		Anchor:             ptrStr(anchor),
		Redundancy:         ptrU8(redundancy),
		Price:              ptrAmount(price),
		Depth:              ptrU8(depth),
		Hash:               ptrStr(hash),
		ObfuscatedHash:     ptrStr(obfuscatedHash),
		Amount:             ptrAmount(amount),
		WinnerOwner:        ptrAddr(winnerOwner),
		WinnerOverlay:      ptrStr(winnerOverlay),
		WinnerStake:        ptrAmount(winnerStake),
		WinnerStakeDensity: ptrAmount(winnerStakeDensity),
		WinnerHash:         ptrStr(winnerHash),
		WinnerDepth:        ptrU8(winnerDepth),
	}
	return ev, nil
}

func (s *Store) ExportEvents(ctx context.Context, from, to types.BlockNumber, emit func(storage.ExportedEvent) error) error {
	stampRows, err := s.db.QueryContext(ctx, `SELECT event_kind, batch_id, block_number, block_timestamp, tx_hash, log_index, contract_family, contract_address, from_address, data_blob, pot_recipient, pot_total_amount, price, copy_index, copy_batch_id FROM stamp_events WHERE block_number BETWEEN ? AND ? ORDER BY block_number, log_index`, uint64(from), uint64(to))
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

	incRows, err := s.db.QueryContext(ctx, incentivesSelectQuery+` WHERE block_number BETWEEN ? AND ? ORDER BY block_number, log_index`, uint64(from), uint64(to))
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
