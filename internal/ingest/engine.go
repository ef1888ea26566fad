// Package ingest implements the chunked, resumable scan engine (§4.5): it
// walks a block range in fixed-size chunks, fetches logs for every registry
// contract whose deployment window intersects each chunk, decodes them,
// derives the address/interaction side channel (§4.8), and commits one
// chunk's worth of storage writes atomically.
package ingest

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/registry"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// AddressTrackingConfig is the "address_tracking" configuration group (§6).
type AddressTrackingConfig struct {
	Enabled               bool
	MaxFundersTracked     int
	FundingLookbackBlocks uint64
	MinFundingAmount      types.BigUnsigned
	ContractDetection     bool
}

// Config parameterises an Engine.
type Config struct {
	// ChunkSize is the number of blocks per scan chunk (§4.5 step 1).
	ChunkSize uint64
	// FanOut bounds the number of contracts fetched concurrently within one
	// chunk (§5: "fan out contract fetches in parallel ... bounded by a
	// small concurrency limit"). Zero or negative means unbounded.
	FanOut int
	// Retry governs every chain-client call the engine makes (§4.1).
	Retry retry.Config
	// AddressTracking toggles and bounds the §4.8 side channel.
	AddressTracking AddressTrackingConfig

	// cacheSize bounds the three process-wide caches (§9 "a process-wide
	// cache ... is owned by the ingestion engine"); defaulted if zero.
	cacheSize int
}

const defaultCacheSize = 8192

// ChunkProgress describes one committed (or skipped) chunk, handed to the
// caller-supplied progress callback (§4.5 step 5 "invoke a chunk-level
// callback").
type ChunkProgress struct {
	ContractAddress types.Address
	From            types.BlockNumber
	To              types.BlockNumber
	EventCount      int
	Skipped         bool
}

// Result aggregates the counts scan() returns (§4.5 contract).
type Result struct {
	FromBlock       types.BlockNumber
	ToBlock         types.BlockNumber
	EventsProcessed uint64
	ChunksProcessed uint64
	ChunksSkipped   uint64
	LastSyncedBlock types.BlockNumber
}

// ScanOptions tunes one call to Scan.
type ScanOptions struct {
	// Force bypasses the chunk-cache skip, overwriting via the idempotent
	// upsert (§9 open question (a), the "force re-fetch" admin operation).
	Force bool
	// OnChunk, if set, is invoked after every chunk commit or skip.
	OnChunk func(ChunkProgress)
}

// Engine is the ingestion engine (§4.5). It holds no global state; every
// dependency is passed to NewEngine explicitly (§9 "no globals").
type Engine struct {
	store    storage.Store
	registry *registry.Registry
	chain    chainclient.Client
	cfg      Config
	log      *logrus.Entry

	blockTimestamps *lru.Cache[types.BlockNumber, time.Time]
	txDetails       *lru.Cache[string, chainclient.Transaction]
	contractness    *lru.Cache[types.Address, bool]
}

// NewEngine builds an Engine. log must not be nil; pass logrus.NewEntry(logrus.StandardLogger())
// if the caller has no richer context to attach.
func NewEngine(store storage.Store, reg *registry.Registry, chain chainclient.Client, cfg Config, log *logrus.Entry) (*Engine, error) {
	size := cfg.cacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	blockTimestamps, err := lru.New[types.BlockNumber, time.Time](size)
	if err != nil {
		return nil, err
	}
	txDetails, err := lru.New[string, chainclient.Transaction](size)
	if err != nil {
		return nil, err
	}
	contractness, err := lru.New[types.Address, bool](size)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:           store,
		registry:        reg,
		chain:           chain,
		cfg:             cfg,
		log:             log,
		blockTimestamps: blockTimestamps,
		txDetails:       txDetails,
		contractness:    contractness,
	}, nil
}

func (e *Engine) fanOutLimit() int {
	if e.cfg.FanOut <= 0 {
		return -1 // errgroup.SetLimit(-1) disables the limit
	}
	return e.cfg.FanOut
}
