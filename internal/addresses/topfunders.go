// Package addresses implements the off-line top_funders aggregation §4.8
// names but leaves unspecified: "a periodic job aggregates incoming
// interactions per recipient, keeps the top 10 by amount, and serialises
// them into the address record. It must tolerate concurrent writers
// (read-compute-upsert with compare-and-set on a version column)."
package addresses

import (
	"context"
	"sort"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// defaultMaxFundersTracked matches §3's "top 10 by amount".
const defaultMaxFundersTracked = 10

// maxCASAttempts bounds the read-compute-upsert retry loop so a constantly
// contended address cannot spin RefreshTopFunders forever.
const maxCASAttempts = 10

// RefreshTopFunders recomputes one address's top_funders list (§4.8, §9(c)):
// sum every incoming interaction by sender, rank descending by amount, keep
// the top maxFunders, and persist under compare-and-set against the
// address record's version column. A stale version triggers a fresh
// read-compute-upsert rather than overwriting a concurrent writer's update.
func RefreshTopFunders(ctx context.Context, store storage.Store, addr types.Address, maxFunders int) error {
	if maxFunders <= 0 {
		maxFunders = defaultMaxFundersTracked
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		rec, ok, err := store.Address(ctx, addr)
		if err != nil {
			return errs.Wrap(errs.KindStorage, err, "reading address record")
		}
		if !ok {
			return nil
		}

		interactions, err := store.InteractionsTo(ctx, addr)
		if err != nil {
			return errs.Wrap(errs.KindStorage, err, "listing interactions for top funders")
		}

		funders := rankFunders(interactions, maxFunders)

		applied, err := store.SetTopFunders(ctx, addr, funders, rec.Version)
		if err != nil {
			return errs.Wrap(errs.KindStorage, err, "writing top funders")
		}
		if applied {
			return nil
		}
	}

	return errs.New(errs.KindStorage, "top funders refresh: version kept changing under concurrent writers")
}

// rankFunders sums each sender's contribution across interactions and
// returns the top n, descending by amount.
func rankFunders(interactions []storage.AddressInteraction, n int) []storage.TopFunder {
	totals := make(map[types.Address]types.BigUnsigned)
	for _, in := range interactions {
		if in.Amount == nil {
			continue
		}
		totals[in.From] = totals[in.From].Add(*in.Amount)
	}

	funders := make([]storage.TopFunder, 0, len(totals))
	for from, amount := range totals {
		funders = append(funders, storage.TopFunder{Address: from, Amount: amount})
	}
	sort.Slice(funders, func(i, j int) bool { return funders[i].Amount.Cmp(funders[j].Amount) > 0 })
	if len(funders) > n {
		funders = funders[:n]
	}
	return funders
}

// RefreshAll runs RefreshTopFunders over every known address, for the
// periodic invocation the follow loop's tick performs.
func RefreshAll(ctx context.Context, store storage.Store, maxFunders int) (int, error) {
	records, err := store.Addresses(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, err, "listing addresses for top funders refresh")
	}

	refreshed := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return refreshed, errs.Wrap(errs.KindCancellation, err, "top funders refresh cancelled")
		}
		if err := RefreshTopFunders(ctx, store, rec.Address, maxFunders); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}
