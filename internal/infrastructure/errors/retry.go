package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// RetryLogger receives a line for every retried attempt. logging.Logger satisfies it.
type RetryLogger interface {
	Warn(msg string, fields ...interface{})
}

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts     int           // Maximum number of attempts, including the first
	InitialDelay    time.Duration // Delay before the second attempt
	MaxDelay        time.Duration // Upper bound for any single delay
	BackoffFactor   float64       // Exponential backoff factor
	Jitter          bool          // Add up to 25% random jitter to delays
	RetryableErrors []ErrorCode   // Codes eligible for retry
	Logger          RetryLogger   // Optional
}

// ReadRetryConfig returns the policy used for idempotent reads.
// Writes are never retried: a replayed increment would double count.
func ReadRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryableErrors: []ErrorCode{
			ErrCodeBusy,
			ErrCodeConnection,
			ErrCodeTimeout,
		},
	}
}

// RetryableOperation is an idempotent unit of work
type RetryableOperation func(ctx context.Context) error

// Retry runs operation until it succeeds, fails with a non-retryable error,
// exhausts MaxAttempts, or ctx is done.
func Retry(ctx context.Context, config *RetryConfig, op string, operation RetryableOperation) error {
	if config == nil {
		config = ReadRetryConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err, config) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := calculateDelay(attempt, config)
		if config.Logger != nil {
			config.Logger.Warn("Retrying operation",
				"operation", op,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"delay_ms", delay.Milliseconds(),
				"error", err.Error(),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("operation '%s' cancelled during retry: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation '%s' failed after %d attempts: %w", op, attempts, lastErr)
}

// shouldRetry reports whether err is a retryable repository error whose code the config allows.
// Write-kind errors are never retried.
func shouldRetry(err error, config *RetryConfig) bool {
	var repoErr *RepositoryError
	if !errors.As(err, &repoErr) {
		return false
	}
	if repoErr.Kind == KindWrite || !repoErr.IsRetryable() {
		return false
	}
	return slices.Contains(config.RetryableErrors, repoErr.Code)
}

// calculateDelay computes the exponential backoff delay for the given zero-based attempt
func calculateDelay(attempt int, config *RetryConfig) time.Duration {
	multiplier := 1.0
	for range attempt {
		multiplier *= config.BackoffFactor
	}

	delay := time.Duration(float64(config.InitialDelay) * multiplier)
	if config.Jitter && delay > 0 {
		if jitter := int64(float64(delay) * 0.25); jitter > 0 {
			delay += time.Duration(rand.Int64N(jitter))
		}
	}

	if config.MaxDelay > 0 {
		delay = min(delay, config.MaxDelay)
	}
	return delay
}
