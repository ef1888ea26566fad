// Package expiry implements the TTL and price-trajectory analytics engine
// (§4.6): deterministic integer-safe TTL arithmetic, a fixed-point iteration
// over exponential price trajectories, and period aggregation for capacity
// planning. It never mutates the batch table except through the --refresh
// sweep, which only overwrites normalised_balance with an on-chain read.
package expiry

import (
	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/storage"
)

// defaultChunkBytes is the payload size of one Swarm storage chunk. The
// protocol fixes this at 4 KiB; it is configurable here only so a future
// protocol revision does not require a code change.
const defaultChunkBytes = 4096

// Config groups the scalars the expiry engine needs beyond the batch table
// itself (§6 config group "blockchain").
type Config struct {
	BlockTimeSeconds float64
	ChunkBytes       uint64
	Retry            retry.Config
}

// Engine is the expiry/TTL analytics engine (§4.6).
type Engine struct {
	store storage.Store
	chain chainclient.Client
	cfg   Config
}

// NewEngine constructs an Engine. store and chain are held by reference,
// not copied, matching §9's "no global singletons" design note.
func NewEngine(store storage.Store, chain chainclient.Client, cfg Config) *Engine {
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = defaultChunkBytes
	}
	return &Engine{store: store, chain: chain, cfg: cfg}
}
