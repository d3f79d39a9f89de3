package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/backoff"
)

// Prometheus metrics for retry operations.
var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_api_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moniewatch_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation",
	}, []string{"operation"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A logical call therefore makes at most MaxRetries+1 tries.
	MaxRetries int

	// Policy computes the delay before each retry.
	Policy *backoff.Policy
}

// DefaultRetryConfig returns the retry configuration used against the
// upstream API: 3 retries with capped exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Policy:     backoff.Default(),
	}
}

// retryWithBackoff executes fn until it succeeds, returns a terminal error,
// or the retry budget is spent. It respects context cancellation: once ctx
// is done no further attempts are made.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, operation string, fn func() error) error {
	policy := cfg.Policy
	if policy == nil {
		policy = backoff.Default()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Str("operation", operation).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := policy.Delay(attempt)
		apiRetriesTotal.WithLabelValues(operation).Inc()
		apiRetryBackoffSeconds.WithLabelValues(operation).Observe(delay.Seconds())

		logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	apiRetryExhaustedTotal.WithLabelValues(operation).Inc()
	logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Int("tries", cfg.MaxRetries+1).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d tries: %w", ErrRetryExhausted, cfg.MaxRetries+1, lastErr)
}
