// Package storage defines the command vocabulary (§4.4) shared by the
// sqlite and postgres back-ends: transactional event/batch/address upserts,
// the chunk cache exactly-once guard, and the read-only projections the
// query surface (§4.7) needs. Callers — the ingestion engine, the expiry
// engine, the query surface, the CLI — are written against this package's
// interfaces only; they never import internal/storage/sqlite or
// internal/storage/postgres directly.
package storage

import (
	"time"

	"swarm-indexer/internal/types"
)

// BatchRecord is the materialised view of a batch's lifecycle (§3 "Batch
// record").
type BatchRecord struct {
	BatchID           string
	Owner             *types.Address
	Payer             *types.Address
	Depth             *uint8
	BucketDepth       *uint8
	Immutable         *bool
	NormalisedBalance types.BigUnsigned
	BlockNumber       uint64
	CreatedAt         time.Time
	ContractFamily    types.ContractFamily
}

// AddressRecord is §3's "Address record".
type AddressRecord struct {
	Address              types.Address
	StampIDs             []string
	TotalStampsPurchased uint64
	TotalAmountSpent     types.BigUnsigned
	TopFunders           []TopFunder
	IsFunder             bool
	FundedAddresses      []string
	FirstSeen            time.Time
	LastSeen             time.Time
	FirstBlock           uint64
	LastBlock            uint64
	TransactionCount     uint64
	Classification       AddressClassification
	IsContract           bool
	Label                *string
	Notes                *string
	Version              uint64 // compare-and-set guard for RefreshTopFunders (§4.8, §9(c))
}

// AddressClassification enumerates §3's classification values.
type AddressClassification string

const (
	ClassificationBuyer    AddressClassification = "buyer"
	ClassificationFunder   AddressClassification = "funder"
	ClassificationBoth     AddressClassification = "both"
	ClassificationContract AddressClassification = "contract"
)

// TopFunder is one entry of an address's serialised top_funders list
// (§4.8 supplement D.3).
type TopFunder struct {
	Address types.Address     `json:"address"`
	Amount  types.BigUnsigned `json:"amount"`
}

// AddressInteraction is §3's "Address interaction".
type AddressInteraction struct {
	From           types.Address
	To             types.Address
	TxHash         string
	Amount         *types.BigUnsigned
	BlockNumber    uint64
	BlockTimestamp time.Time
	RelatedToStamp bool
	StampBatchID   *string
}

// TxDetail is §3's "Transaction detail cache" row.
type TxDetail struct {
	TxHash             string
	From               types.Address
	To                 *types.Address
	Value              *types.BigUnsigned
	GasPrice           *types.BigUnsigned
	GasUsed            *uint64
	BlockNumber        uint64
	BlockTimestamp     time.Time
	InputData          []byte
	IsContractCreation bool
	FetchedAt          time.Time
}

// ChunkRecord is §3's "Chunk cache" row — the exactly-once guard for range
// processing.
type ChunkRecord struct {
	ChunkHash       string
	ContractAddress types.Address
	FromBlock       types.BlockNumber
	ToBlock         types.BlockNumber
	ProcessedAt     time.Time
	EventCount      int
}

// DiagnosticKind classifies a non-fatal anomaly recorded to the diagnostics
// ledger (supplement D.2).
type DiagnosticKind string

const (
	DiagnosticAttributionMismatch DiagnosticKind = "attribution_mismatch"
	DiagnosticBatchReplayNoOp     DiagnosticKind = "batch_replay_noop"
	DiagnosticParseFailure        DiagnosticKind = "parse_failure"
)

// Diagnostic is one row of the diagnostics ledger (supplement D.2).
type Diagnostic struct {
	Kind        DiagnosticKind
	Detail      string
	BlockNumber *uint64
	TxHash      *string
	LogIndex    *uint
	RecordedAt  time.Time
}

// EventSummaryRow is one grouping bucket of the Summary query (§4.7).
type EventSummaryRow struct {
	EventKind string
	Family    types.ContractFamily
	Count     uint64
}

// BatchStatusRow is one row of the Batch status query (§4.7), joined with a
// caller-supplied current price.
type BatchStatusRow struct {
	BatchID   string
	Depth     uint8
	Chunks    uint64
	TTLBlocks uint64
	TTLDays   float64
	ExpiryAt  time.Time
}

// AddressSummaryRow is one row of the Address summary query (§4.7).
type AddressSummaryRow struct {
	Address       types.Address
	StampCount    uint64
	AsOwnerCount  uint64
	AsPayerCount  uint64
	AsSenderCount uint64
	HasDelegation bool // owner != sender observed at least once
	FirstSeen     time.Time
	LastSeen      time.Time
}
