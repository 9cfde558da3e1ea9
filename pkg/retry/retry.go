package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// Func is an operation that can be retried
type Func func() error

// Config holds the configuration for retrying a run-level boundary operation.
// Per-order pipeline calls are never retried; re-running the batch is the
// recovery mechanism for those.
type Config struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	Logger      logger.Logger
}

// Do retries fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent
func Do(ctx context.Context, fn Func, cfg *Config) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
		default:
		}

		err := fn()

		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		if !apperrors.IsRetryable(err) {
			cfg.Logger.Warn("Non-retryable error encountered, giving up",
				"error", err,
				"attempt", attempt)
			return err
		}

		backoff := cfg.Backoff.NextBackoff(attempt)

		cfg.Logger.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", cfg.MaxAttempts,
			"backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}
