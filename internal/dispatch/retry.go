package dispatch

import (
	"context"
	"math"
	"time"
)

// RetryConfig bounds the delivery retry budget for one action.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryConfig returns the default delivery retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// retryDelivery runs fn until it succeeds, the budget is exhausted, the
// error is a rejection, or the context ends. Returns the last error and the
// attempt count.
func retryDelivery(ctx context.Context, config RetryConfig, fn func() error) (error, int) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err(), attempts
		default:
		}

		attempts++
		err := fn()
		if err == nil {
			return nil, attempts
		}
		lastErr = err

		// Rejections are an answer, not a transport failure.
		if IsRejection(err) {
			return err, attempts
		}

		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err(), attempts
		case <-time.After(calculateDelay(attempt, config)):
		}
	}

	return lastErr, attempts
}

// calculateDelay applies exponential backoff capped at MaxDelay.
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay
	if attempt > 0 {
		delay = time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	}
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
