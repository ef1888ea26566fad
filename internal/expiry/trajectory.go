package expiry

import (
	"math"
	"math/big"
	"time"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// maxTrajectoryIterations bounds the fixed-point iteration (§4.6: "the
// engine reports convergence failure if the fixed point is not reached
// within a fixed cap").
const maxTrajectoryIterations = 25

// trajectoryTolerance is the relative tolerance on successive TTL-day
// estimates that counts as converged.
const trajectoryTolerance = 1e-4

// TrajectoryParams describes a caller-supplied price scenario: the price
// changes by PercentageChange percent (e.g. 200 for +200%) over Days days,
// compounding daily (§4.6).
type TrajectoryParams struct {
	PercentageChange float64
	Days             float64
}

// TrajectoryResult is the fixed-point iteration's outcome.
type TrajectoryResult struct {
	TTLDays    float64
	AvgPrice   types.BigUnsigned
	Converged  bool
	Iterations int
}

// PriceTrajectory iterates §4.6's fixed point: starting from the flat-price
// TTL estimate, it recomputes the time-averaged price over the current TTL
// estimate and re-derives the TTL under that average, repeating until the
// day estimate stops moving (or the iteration cap is hit).
func (e *Engine) PriceTrajectory(batch storage.BatchRecord, flatPrice types.BigUnsigned, params TrajectoryParams) (TrajectoryResult, error) {
	if params.Days <= 0 {
		return TrajectoryResult{}, errs.New(errs.KindConfig, "trajectory days must be positive")
	}

	r := math.Pow(1+params.PercentageChange/100, 1/params.Days)

	d, err := e.ttlDaysAt(batch, flatPrice)
	if err != nil {
		return TrajectoryResult{}, err
	}
	if d == 0 {
		return TrajectoryResult{TTLDays: 0, AvgPrice: flatPrice, Converged: true, Iterations: 0}, nil
	}

	avg := flatPrice
	for i := 1; i <= maxTrajectoryIterations; i++ {
		avg = averagePrice(flatPrice, r, d)
		next, err := e.ttlDaysAt(batch, avg)
		if err != nil {
			return TrajectoryResult{TTLDays: d, AvgPrice: avg, Converged: false, Iterations: i}, nil
		}
		if next == 0 {
			return TrajectoryResult{TTLDays: 0, AvgPrice: avg, Converged: true, Iterations: i}, nil
		}
		if math.Abs(next-d)/d <= trajectoryTolerance {
			return TrajectoryResult{TTLDays: next, AvgPrice: avg, Converged: true, Iterations: i}, nil
		}
		d = next
	}

	return TrajectoryResult{TTLDays: d, AvgPrice: avg, Converged: false, Iterations: maxTrajectoryIterations}, nil
}

// averagePrice computes the time-average of an exponential price trajectory
// over d days starting at flat price p growing at daily factor r (§4.6):
//
//	avg_price = p * (r^d - 1) / (ln(r) * d)
//
// r == 1 (no change) is the trajectory's degenerate case and returns p
// unchanged, avoiding division by ln(1) = 0.
func averagePrice(p types.BigUnsigned, r, d float64) types.BigUnsigned {
	if math.Abs(r-1) < 1e-9 {
		return p
	}
	factor := (math.Pow(r, d) - 1) / (math.Log(r) * d)
	scaled := new(big.Float).SetInt(p.Int())
	scaled.Mul(scaled, big.NewFloat(factor))
	rounded, _ := scaled.Int(nil)
	if rounded.Sign() < 0 {
		rounded.SetInt64(0)
	}
	return types.FromBigInt(rounded)
}

// ttlDaysAt is PriceTrajectory's helper: the TTL, in days, for batch under a
// flat price, ignoring the wall-clock expiry timestamp.
func (e *Engine) ttlDaysAt(batch storage.BatchRecord, price types.BigUnsigned) (float64, error) {
	result, err := e.TTL(batch, price, time.Time{})
	if err != nil {
		return 0, err
	}
	return result.TTLDays, nil
}
