package query

import (
	"context"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
)

// Summary groups events by event_kind within a time window, optionally
// filtered by family, event kind, or batch-id prefix (§4.7 "Summary"). An
// empty table yields an empty (not nil-error) result, per §7's "analytics
// commands return a well-formed empty result when the underlying tables are
// empty".
func (s *Surface) Summary(ctx context.Context, filter storage.SummaryFilter) ([]storage.EventSummaryRow, error) {
	rows, err := s.store.Summary(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "querying event summary")
	}
	return rows, nil
}
