package expiry

import (
	"context"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/types"
)

// Period is a time-grouping granularity for expiry aggregation (§4.6).
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// PeriodBucket is one non-empty aggregation bucket (§4.6 "Period
// aggregation"). StorageCapacityExpiring is in raw bytes; render it through
// HumanizeBytes at the display boundary.
type PeriodBucket struct {
	BucketStart             time.Time
	ChunksExpiring          uint64
	StorageCapacityExpiring uint64
}

// Aggregate buckets every batch's projected expiry into period-sized
// windows and sums chunks_expiring / storage_capacity_expiring per bucket
// (§4.6). Batches already expired, or whose depth is unknown, or for which
// TTL cannot be computed under price (e.g. price is zero), are skipped.
func (e *Engine) Aggregate(ctx context.Context, price types.BigUnsigned, now time.Time, period Period) ([]PeriodBucket, error) {
	batches, err := e.store.Batches(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "listing batches for expiry aggregation")
	}

	truncate, err := bucketFunc(period)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*PeriodBucket)
	for _, b := range batches {
		result, err := e.TTL(b, price, now)
		if err != nil || result.Expired {
			continue
		}
		start := truncate(result.ExpiryAt)
		bk, ok := buckets[start]
		if !ok {
			bk = &PeriodBucket{BucketStart: start}
			buckets[start] = bk
		}
		bk.ChunksExpiring += result.Chunks
		bk.StorageCapacityExpiring += result.Chunks * e.cfg.ChunkBytes
	}

	out := make([]PeriodBucket, 0, len(buckets))
	for _, bk := range buckets {
		out = append(out, *bk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

func bucketFunc(period Period) (func(time.Time) time.Time, error) {
	switch period {
	case PeriodDay:
		return func(t time.Time) time.Time {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}, nil
	case PeriodWeek:
		return func(t time.Time) time.Time {
			t = t.UTC()
			y, m, d := t.Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			offset := (int(day.Weekday()) + 6) % 7 // Monday = start of week
			return day.AddDate(0, 0, -offset)
		}, nil
	case PeriodMonth:
		return func(t time.Time) time.Time {
			y, m, _ := t.UTC().Date()
			return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		}, nil
	default:
		return nil, errs.New(errs.KindConfig, "unknown aggregation period: "+string(period))
	}
}

// HumanizeBytes renders a byte count in binary IEC units (KiB, MiB, ...) at
// the display boundary (§4.6 "Storage capacity is rendered in binary IEC
// units at the display boundary"). Persisted and computed values remain raw
// byte counts; only rendering goes through this function.
func HumanizeBytes(n uint64) string {
	return humanize.IBytes(n)
}
