// Package follow implements the follow loop (§4.9): a polling driver that
// reuses the ingestion engine above a moving chain tip. It is the only
// place in the core, besides the retry policy, that blocks on wall-clock
// time.
package follow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"swarm-indexer/internal/addresses"
	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/ingest"
	"swarm-indexer/internal/retry"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// Config groups the follow loop's own scalars, separate from the
// ingestion engine's Config (§6 config group "blockchain"/"retry").
type Config struct {
	PollInterval time.Duration
	SafetyDepth  uint64
	Retry        retry.Config

	// TopFundersEveryTicks refreshes every address's top_funders list
	// (supplement D.3) every N ticks that ran a scan (no-op ticks are not
	// counted); zero disables the periodic refresh.
	TopFundersEveryTicks int
	TopFundersMax        int
}

// Loop is the follow-loop driver.
type Loop struct {
	engine *ingest.Engine
	store  storage.Store
	chain  chainclient.Client
	cfg    Config
	log    *logrus.Entry
	ticks  uint64
}

// NewLoop constructs a Loop. engine, store, and chain are held by
// reference (§9 "no global singletons").
func NewLoop(engine *ingest.Engine, store storage.Store, chain chainclient.Client, cfg Config, log *logrus.Entry) *Loop {
	return &Loop{engine: engine, store: store, chain: chain, cfg: cfg, log: log}
}

// TickResult reports one poll iteration's outcome, for the caller's
// observability hook.
type TickResult struct {
	Scanned bool
	Result  ingest.Result
}

// RunOptions lets the caller observe each tick without the loop itself
// rendering anything (§1 Non-goals: no human-facing rendering in the core).
type RunOptions struct {
	OnTick func(TickResult)
}

// Run polls the chain tip and scans [last_synced+1, tip-safety_depth] on
// each tick, sleeping PollInterval between iterations. Cancellation is
// cooperative: Run checks it before each tick and at the polling sleep, and
// within a tick the scan checks it between chunks and the retry policy
// between attempts, so a chunk is never left half-committed (§4.9, §5).
func (l *Loop) Run(ctx context.Context, opts RunOptions) error {
	for {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.KindCancellation, err, "follow loop cancelled")
		}

		tick, err := l.tick(ctx)
		if err != nil {
			return err
		}
		if opts.OnTick != nil {
			opts.OnTick(tick)
		}

		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindCancellation, ctx.Err(), "follow loop cancelled")
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

// tick resolves the tip, derives the scan window, and runs it if the
// window is non-empty.
func (l *Loop) tick(ctx context.Context) (TickResult, error) {
	var tip types.BlockNumber
	err := retry.Do(ctx, l.cfg.Retry, nil, func(ctx context.Context) error {
		t, err := l.chain.BlockNumber(ctx)
		if err != nil {
			return err
		}
		tip = t
		return nil
	})
	if err != nil {
		return TickResult{}, errs.Wrap(errs.KindTransport, err, "fetching chain tip")
	}

	if uint64(tip) < l.cfg.SafetyDepth {
		return TickResult{}, nil
	}
	safeTip := tip - types.BlockNumber(l.cfg.SafetyDepth)

	last, ok, err := l.store.LastSyncedBlock(ctx)
	if err != nil {
		return TickResult{}, errs.Wrap(errs.KindStorage, err, "reading last synced block")
	}
	from := types.BlockNumber(0)
	if ok {
		from = last + 1
	}
	if from > safeTip {
		return TickResult{}, nil
	}

	result, err := l.engine.Scan(ctx, from, safeTip, ingest.ScanOptions{})
	if err != nil {
		return TickResult{}, err
	}

	if l.cfg.TopFundersEveryTicks > 0 {
		l.ticks++
		if l.ticks%uint64(l.cfg.TopFundersEveryTicks) == 0 {
			if _, err := addresses.RefreshAll(ctx, l.store, l.cfg.TopFundersMax); err != nil {
				l.log.WithError(err).Warn("top funders refresh failed; continuing follow loop")
			}
		}
	}

	return TickResult{Scanned: true, Result: result}, nil
}
