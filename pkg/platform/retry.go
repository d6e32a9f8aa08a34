package platform

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls retry behavior for adapter calls
type RetryConfig struct {
	// Attempts is the total number of tries (default 3)
	Attempts int

	// Delay is the base delay between attempts (default 2s)
	Delay time.Duration

	// Jitter adds up to 50% random variance to each delay, used for
	// rate-limited responses so concurrent deployments fan out
	Jitter bool
}

// DefaultRetry returns the retry policy used by platform adapters
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		Delay:    2 * time.Second,
	}
}

// Retry runs op up to cfg.Attempts times, sleeping cfg.Delay between
// attempts. Only retryable errors (see IsRetryable) are retried; other
// errors return immediately. Context cancellation aborts the wait.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if attempt > 1 {
			delay := cfg.Delay
			if cfg.Jitter {
				delay += time.Duration(rand.Int63n(int64(cfg.Delay / 2)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}
