// Package retry wraps a fallible, idempotent operation with the two-phase
// backoff governor described in the spec: an inner loop of up to MaxRetries
// attempts with exponential delay, and an outer loop that, once the inner
// loop is exhausted, waits ExtendedRetryWait and resets the inner counter.
// The outer loop runs indefinitely unless the operation reports a
// non-retryable failure or the context is cancelled.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"swarm-indexer/internal/errs"
)

// Config is the two-phase backoff schedule.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	ExtendedRetryWait time.Duration
}

// Classifier maps a concrete failure to retryable/fatal. Errors already
// wrapped with errs.Kind are classified by Retryable below; a Classifier is
// only needed when the operation returns raw errors (e.g. directly from a
// transport library) that have not yet been wrapped.
type Classifier func(err error) bool

// Retryable is the default Classifier: an error is retryable when its
// errs.Kind classification is KindTransport; everything else (including
// KindCancellation) is fatal and propagated immediately.
func Retryable(err error) bool {
	return errs.Is(err, errs.KindTransport)
}

// Do runs op under the two-phase schedule described above. op must be
// idempotent — Do may invoke it more than once for the same logical
// operation. Do returns on the first success, the first fatal failure
// (as classified by classify), or a KindCancellation error wrapping
// ctx.Err() if ctx is cancelled before an attempt or during a wait.
func Do(ctx context.Context, cfg Config, classify Classifier, op func(context.Context) error) error {
	if classify == nil {
		classify = Retryable
	}
	log := logrus.WithField("component", "retry")

	for {
		b := &backoff.ExponentialBackOff{
			InitialInterval:     cfg.InitialDelay,
			RandomizationFactor: 0,
			Multiplier:          cfg.BackoffMultiplier,
			MaxInterval:         0,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}
		if b.Multiplier <= 1 {
			b.Multiplier = 2
		}
		b.Reset()

		attempt := 0
		var lastErr error
		for attempt < cfg.MaxRetries {
			if err := ctx.Err(); err != nil {
				return errs.Wrap(errs.KindCancellation, err, "retry cancelled")
			}

			err := op(ctx)
			if err == nil {
				return nil
			}
			if !classify(err) {
				return err
			}
			lastErr = err
			attempt++
			if attempt >= cfg.MaxRetries {
				break
			}

			delay := b.NextBackOff()
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("retrying transient failure")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errs.Wrap(errs.KindCancellation, ctx.Err(), "retry cancelled during backoff")
			case <-timer.C:
			}
		}

		log.WithError(lastErr).WithField("extended_wait", cfg.ExtendedRetryWait).
			Warn("inner retry budget exhausted, entering extended wait")

		timer := time.NewTimer(cfg.ExtendedRetryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.Wrap(errs.KindCancellation, ctx.Err(), "retry cancelled during extended wait")
		case <-timer.C:
		}
	}
}
