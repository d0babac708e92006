package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = fakeSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoRetriesWithIncreasingDelay(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = fakeSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("overloaded")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "one initial attempt plus three retries")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var delays []time.Duration
	permanent := errors.New("bad request")

	p := Default()
	p.Sleep = fakeSleep(&delays)
	p.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoRecoversMidway(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = fakeSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("rate limited")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Default()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("overloaded")
	})

	require.ErrorIs(t, err, context.Canceled)
}
