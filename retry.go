package smbclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy defines retry behavior for connecting handles.
type RetryPolicy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`  // Maximum number of attempts (default: 1)
	InitialDelay time.Duration `mapstructure:"initial_delay"` // Initial delay between retries (default: 100ms)
	MaxDelay     time.Duration `mapstructure:"max_delay"`     // Maximum delay between retries (default: 5s)
	Multiplier   float64       `mapstructure:"multiplier"`    // Backoff multiplier (default: 2.0)
}

// defaultRetryPolicy makes a single attempt: connection errors surface to
// the caller of Acquire unless a policy is configured.
var defaultRetryPolicy = &RetryPolicy{
	MaxAttempts:  1,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// withRetry executes an operation with retry logic using exponential backoff.
func withRetry(ctx context.Context, policy *RetryPolicy, log *zap.Logger, operation func() error) error {
	if policy == nil {
		policy = defaultRetryPolicy
	}

	// If MaxAttempts is 0 or 1, don't retry
	if policy.MaxAttempts <= 1 {
		return operation()
	}

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		// Don't retry on last attempt
		if attempt == policy.MaxAttempts {
			break
		}

		log.Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}
