// Package chainclient defines the abstract chain client facade (§6): the
// sole transport dependency the rest of the indexer is written against. The
// ingestion engine, expiry refresh, and the CLI only ever see the Client
// interface; internal/chainclient/rpc provides the real go-ethereum-backed
// implementation.
package chainclient

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// Transaction is the subset of an on-chain transaction the indexer's side
// channel needs (§4.2 "Side channel").
type Transaction struct {
	From       common.Address
	To         *common.Address // nil for contract creation
	Value      *big.Int
	GasPrice   *big.Int
	Input      []byte
	IsCreation bool
}

// Log mirrors go-ethereum's core/types.Log, trimmed to the fields the
// decoder and ingestion engine use.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Client is the chain client facade named in §6. Every method may block on
// network I/O and must be called through the retry policy by callers that
// want the two-phase backoff; Client implementations themselves only
// classify errors, they do not retry.
type Client interface {
	// BlockNumber returns the current chain tip.
	BlockNumber(ctx context.Context) (types.BlockNumber, error)

	// BlockTimestamp returns the block's timestamp. Cacheable by the caller.
	BlockTimestamp(ctx context.Context, block types.BlockNumber) (time.Time, error)

	// Logs returns all logs emitted by address in the inclusive range
	// [from, to]. Large ranges are the caller's responsibility to chunk;
	// this method does not subdivide internally.
	Logs(ctx context.Context, address types.Address, from, to types.BlockNumber) ([]Log, error)

	// Transaction returns transaction details by hash.
	Transaction(ctx context.Context, hash common.Hash) (Transaction, error)

	// Code returns the contract code at address at the chain tip. An empty
	// result means address is an externally-owned account.
	Code(ctx context.Context, address common.Address) ([]byte, error)

	// CurrentPrice calls the active PriceOracle's price view.
	CurrentPrice(ctx context.Context, oracle types.Address) (types.BigUnsigned, error)

	// RemainingBalance calls the active PostageStamp's remaining-balance view
	// for a batch.
	RemainingBalance(ctx context.Context, postageStamp types.Address, batchID common.Hash) (types.BigUnsigned, error)
}
