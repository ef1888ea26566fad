package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/errs"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2, ExtendedRetryWait: 5 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), cfg, Retryable, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errs.New(errs.KindTransport, "rate limited")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDoPropagatesFatalImmediately(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 2, ExtendedRetryWait: 5 * time.Millisecond}
	calls := 0
	sentinel := errs.New(errs.KindConfig, "bad config")
	err := Do(context.Background(), cfg, Retryable, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestDoEntersExtendedWaitAndResets(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 2, ExtendedRetryWait: 2 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), cfg, Retryable, func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return errs.New(errs.KindTransport, "still failing")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	cfg := Config{MaxRetries: 100, InitialDelay: 50 * time.Millisecond, BackoffMultiplier: 2, ExtendedRetryWait: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, cfg, Retryable, func(ctx context.Context) error {
		return errs.New(errs.KindTransport, "transient")
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
