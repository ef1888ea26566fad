package storage

import (
	"context"
	"time"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/types"
)

// Store is the read-oriented and lifecycle surface every component besides
// the ingestion engine is written against: the query surface (§4.7), the
// expiry engine's refresh sweep (§4.6), the follow loop's last-synced-block
// bookkeeping, and the CLI's export/diagnostics commands.
type Store interface {
	// Migrate applies any pending migrations for this backend (§4.4).
	Migrate(ctx context.Context) error
	Close() error

	// BeginChunk opens a transactional scope for one ingestion chunk
	// (§4.4 "Transactional boundary", §4.5 step 5). Callers must Commit or
	// Rollback exactly once.
	BeginChunk(ctx context.Context) (ChunkTx, error)

	// LastSyncedBlock reads the kv_metadata scalar the ingestion engine and
	// follow loop use to resume (§3 "Key-value metadata").
	LastSyncedBlock(ctx context.Context) (types.BlockNumber, bool, error)

	// HasChunk reports whether chunkHash is already recorded in the chunk
	// cache, letting the ingestion engine skip a previously processed range
	// without opening a transaction (§4.5 step 2).
	HasChunk(ctx context.Context, chunkHash string) (bool, error)

	// Batches lists every known batch (Batch status query, §4.7).
	Batches(ctx context.Context) ([]BatchRecord, error)
	// Batch looks up one batch by id.
	Batch(ctx context.Context, batchID string) (BatchRecord, bool, error)
	// NonZeroBalanceBatches lists batches the expiry engine's --refresh
	// sweep (§4.6) must re-query on-chain.
	NonZeroBalanceBatches(ctx context.Context) ([]BatchRecord, error)
	// SetBatchBalance overwrites a batch's normalised_balance after a
	// refresh sweep fetches the on-chain remaining balance.
	SetBatchBalance(ctx context.Context, batchID string, balance types.BigUnsigned) error

	// Summary groups persisted events by event_kind within [from, to],
	// optionally filtered by family, event kind, or batch-id prefix (§4.7).
	Summary(ctx context.Context, f SummaryFilter) ([]EventSummaryRow, error)

	// Address returns one address record.
	Address(ctx context.Context, addr types.Address) (AddressRecord, bool, error)
	// Addresses lists every known address (Address summary query, §4.7).
	Addresses(ctx context.Context) ([]AddressRecord, error)
	// InteractionsTo lists interactions where addr is the recipient, used
	// by RefreshTopFunders (supplement D.3).
	InteractionsTo(ctx context.Context, addr types.Address) ([]AddressInteraction, error)
	// SetTopFunders writes addr's recomputed top_funders list using
	// compare-and-set on expectedVersion (§4.8, §9(c)); it returns false
	// without error if expectedVersion is stale.
	SetTopFunders(ctx context.Context, addr types.Address, funders []TopFunder, expectedVersion uint64) (bool, error)

	// RecordDiagnostic appends to the diagnostics ledger (supplement D.2).
	RecordDiagnostic(ctx context.Context, d Diagnostic) error
	// Diagnostics lists recorded diagnostics, most recent first.
	Diagnostics(ctx context.Context, limit int) ([]Diagnostic, error)

	// ExportEvents streams every stamp event in [from, to] to emit,
	// then every incentives event in [from, to], each group in
	// (block, log index) order, for the Export command (supplement D.1).
	ExportEvents(ctx context.Context, from, to types.BlockNumber, emit func(ExportedEvent) error) error
	// ImportEvents replays events previously produced by ExportEvents,
	// used only by the round-trip conformance test (supplement D.1).
	ImportEvents(ctx context.Context, events []ExportedEvent) error
}

// SummaryFilter narrows the Summary query (§4.7).
type SummaryFilter struct {
	From          time.Time
	To            time.Time
	Family        *types.ContractFamily
	EventKind     *string
	BatchIDPrefix *string
}

// ExportedEvent is the wire shape ExportEvents/ImportEvents round-trip
// (supplement D.1): exactly one of Stamp or Incentives is set.
type ExportedEvent struct {
	Stamp      *decode.StampEvent
	Incentives *decode.IncentivesEvent
}

// ChunkTx is the write surface scoped to one ingestion chunk (§4.4, §4.5
// step 5): every call commits together or not at all.
type ChunkTx interface {
	// UpsertStampEvent inserts or overwrites a stamp event by its
	// (tx_hash, log_index) uniqueness key (§4.4 "Event upsert").
	UpsertStampEvent(ctx context.Context, ev *decode.StampEvent) error
	// UpsertIncentivesEvent is UpsertStampEvent's counterpart for the
	// storage-incentives wide table.
	UpsertIncentivesEvent(ctx context.Context, ev *decode.IncentivesEvent) error

	// ApplyBatchCreated inserts or replaces the batch row (§4.4 "Batch
	// upsert").
	ApplyBatchCreated(ctx context.Context, ev *decode.StampEvent) error
	// ApplyBatchTopUp updates normalised_balance; if the batch does not yet
	// exist the update is a no-op and a diagnostic is recorded by the
	// caller (the ingestion engine), per §4.4.
	ApplyBatchTopUp(ctx context.Context, batchID string, newBalance types.BigUnsigned) (applied bool, err error)
	// ApplyBatchDepthIncrease updates depth (and normalised_balance, which
	// the event also carries); same no-op-if-missing contract.
	ApplyBatchDepthIncrease(ctx context.Context, batchID string, newDepth uint8, newBalance types.BigUnsigned) (applied bool, err error)

	// UpsertAddress merges the given fields into an address record,
	// creating it if absent (§4.8).
	UpsertAddress(ctx context.Context, mutate func(*AddressRecord)) (types.Address, error)
	// UpsertInteraction appends an address-interaction row, unique on
	// (tx_hash, from, to) (§3).
	UpsertInteraction(ctx context.Context, interaction AddressInteraction) error
	// UpsertTxDetail caches a fetched transaction (§3 "Transaction detail
	// cache").
	UpsertTxDetail(ctx context.Context, detail TxDetail) error

	// RecordDiagnostic is ChunkTx's transaction-scoped counterpart to
	// Store.RecordDiagnostic.
	RecordDiagnostic(ctx context.Context, d Diagnostic) error

	// RecordChunk writes the chunk-cache row marking [from, to] processed
	// for contractAddress (§3 "Chunk cache", §4.5 step 5).
	RecordChunk(ctx context.Context, rec ChunkRecord) error
	// SetLastSyncedBlock advances the kv_metadata cursor.
	SetLastSyncedBlock(ctx context.Context, block types.BlockNumber) error

	// Commit finalises every call made against this ChunkTx atomically.
	Commit(ctx context.Context) error
	// Rollback discards every call made against this ChunkTx. Safe to call
	// after a successful Commit (no-op).
	Rollback(ctx context.Context) error
}
