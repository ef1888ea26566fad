// Package decode implements the pure, per-family event decoders described
// in the spec: one function per contract family mapping a raw log plus its
// block/tx coordinates into a typed event record, dispatched by the
// 32-byte event signature hash in topics[0].
package decode

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// RawLog is the subset of an on-chain log the decoder needs. It mirrors
// core/types.Log from go-ethereum without depending on the rest of that
// struct, so callers (tests, the ingestion engine) can build one without a
// live receipt.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Coordinates carries everything about a log's position the decoder needs
// besides the raw bytes: the block timestamp (fetched separately, since logs
// don't carry it) and which family/address the caller expects this log to
// belong to, per the registry's resolution for the scan.
type Coordinates struct {
	BlockTimestamp  time.Time
	ContractFamily  types.ContractFamily
	ExpectedAddress types.Address
}

// StampEvent is a row of the stamp-event table (§3 "Stamp event"), produced
// by the PostageStamp and StampsRegistry families.
type StampEvent struct {
	EventKind       string
	BatchID         *string
	BlockNumber     uint64
	BlockTimestamp  time.Time
	TxHash          string
	LogIndex        uint
	ContractFamily  types.ContractFamily
	ContractAddress types.Address
	FromAddress     *types.Address // filled by the ingestion engine side channel, not the decoder
	DataBlob        []byte

	// Sparse columns (§3).
	PotRecipient   *types.Address
	PotTotalAmount *types.BigUnsigned
	Price          *types.BigUnsigned
	CopyIndex      *uint64
	CopyBatchID    *string

	// Batch-lifecycle fields, materialised into the batch table by the
	// storage layer rather than queried directly off this row, but carried
	// here since the decoder is the only place that destructures the log.
	Owner             *types.Address
	Payer             *types.Address // StampsRegistry family only
	Depth             *uint8
	BucketDepth       *uint8
	Immutable         *bool
	NormalisedBalance *types.BigUnsigned
	TotalAmount       *types.BigUnsigned
}

// UniqueKey returns the (tx_hash, log_index) uniqueness key (§3).
func (e StampEvent) UniqueKey() (string, uint) { return e.TxHash, e.LogIndex }

// IncentivesEvent is a row of the storage-incentives wide table (§3),
// produced by PriceOracle, StakeRegistry, and Redistribution families.
type IncentivesEvent struct {
	EventKind       string
	BlockNumber     uint64
	BlockTimestamp  time.Time
	TxHash          string
	LogIndex        uint
	ContractFamily  types.ContractFamily
	ContractAddress types.Address

	// Derived (§3, §4.3): round_number always set for incentives events;
	// phase is nil for PriceOracle events (they carry round_number only).
	RoundNumber *uint64
	Phase       *string

	// Sparse columns.
	Owner          *types.Address
	Overlay        *string
	Stake          *types.BigUnsigned
	CommitCount    *uint64
	RevealCount    *uint64
	ChunkCount     *uint64
	Truth          *string
	Anchor         *string
	Redundancy     *uint8
	Price          *types.BigUnsigned
	Depth          *uint8
	Hash           *string
	ObfuscatedHash *string
	Amount         *types.BigUnsigned

	// WinnerSelected's Reveal tuple, flattened (§4.3, §9).
	WinnerOwner        *types.Address
	WinnerOverlay      *string
	WinnerStake        *types.BigUnsigned
	WinnerStakeDensity *types.BigUnsigned
	WinnerHash         *string
	WinnerDepth        *uint8
}

// UniqueKey returns the (tx_hash, log_index) uniqueness key (§3).
func (e IncentivesEvent) UniqueKey() (string, uint) { return e.TxHash, e.LogIndex }

// ParseFailure is returned for malformed payloads: wrong arity, short data,
// non-utf8 where text is expected. It carries the log's coordinates so
// operators can locate the offending transaction.
type ParseFailure struct {
	Family   types.ContractFamily
	TxHash   string
	LogIndex uint
	Reason   string
}

func (f *ParseFailure) Error() string {
	return "decode: " + string(f.Family) + " tx=" + f.TxHash + " log=" + itoa(f.LogIndex) + ": " + f.Reason
}

func itoa(u uint) string {
	if u == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for u > 0 {
		i--
		digits[i] = byte('0' + u%10)
		u /= 10
	}
	return string(digits[i:])
}

// AttributionMismatch is returned (as a diagnostic, not a hard error — see
// §4.3 and §7) when a log's emitting address disagrees with the address the
// caller expected for this scan.
type AttributionMismatch struct {
	Family   types.ContractFamily
	Expected types.Address
	Actual   types.Address
	TxHash   string
	LogIndex uint
}

func (m *AttributionMismatch) Error() string {
	return "decode: attribution mismatch for " + string(m.Family) + ": expected " + string(m.Expected) + " got " + string(m.Actual)
}
