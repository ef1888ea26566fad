package query

import (
	"context"
	"time"

	"swarm-indexer/internal/expiry"
	"swarm-indexer/internal/types"
)

// ExpiryAnalytics is the bucketed aggregate from the expiry engine (§4.7
// "Expiry analytics"). Capacity is returned in raw bytes; rendering to IEC
// units happens at the CLI's display boundary via expiry.HumanizeBytes, not
// here — this layer only projects persisted/computed data.
func (s *Surface) ExpiryAnalytics(ctx context.Context, price types.BigUnsigned, now time.Time, period expiry.Period) ([]expiry.PeriodBucket, error) {
	return s.expiry.Aggregate(ctx, price, now, period)
}
