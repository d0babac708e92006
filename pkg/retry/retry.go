// Package retry provides a reusable retry policy with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried. The zero value performs no
// retries; use Default for the provider-call policy shared by the embedding
// and generation clients.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// Multiplier scales the delay after each retry.
	Multiplier float64
	// Retryable reports whether an error is worth retrying. A nil Retryable
	// retries every error.
	Retryable func(error) bool
	// Sleep is overridable in tests; defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the provider-call policy: 3 retries at 2s, 4s, 8s.
func Default() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
	}
}

// Do runs op, retrying per the policy. It returns nil on the first success,
// the context error if the context ends while waiting, and the last
// operation error once retries are exhausted or a non-retryable error occurs.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
