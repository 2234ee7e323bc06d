package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	statRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	statRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stat_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	statRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the appropriate retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		// STAT throttles per key; back off longer
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// backoff returns the wait before the attempt following `attempt`.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	d := rc.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * rc.BackoffMultiplier)
		if d > rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	return d
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// fn reports the class of its failure so each class gets its own schedule.
// Only server, rate limit and network classes are retried.
func retryWithBackoff(ctx context.Context, configFor func(ErrorClass) RetryConfig, fn func() (ErrorClass, error)) error {
	var (
		lastErr   error
		lastClass ErrorClass
		attempt   int
	)

	for attempt = 1; ; attempt++ {
		class, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr, lastClass = err, class

		if !shouldRetry(class) {
			return lastErr
		}

		config := configFor(class)
		if attempt >= config.MaxAttempts {
			break
		}

		statRetriesTotal.WithLabelValues(string(class)).Inc()

		// ±20% jitter
		wait := config.backoff(attempt)
		jitter := time.Duration(float64(wait) * (0.8 + rand.Float64()*0.4))
		statRetryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	statRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	log.Warn().
		Str("error_class", string(lastClass)).
		Int("attempts", attempt).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
}
