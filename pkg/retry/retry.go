// Package retry implements a bounded exponential backoff combinator that wraps
// any single fallible operation. Each call site supplies its own Policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by operation",
		Buckets: []float64{1, 2, 4, 8, 16, 30},
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation",
	}, []string{"operation"})
)

// ErrRetryExhausted is returned when every attempt allowed by the policy failed
// with a retryable error.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Policy is the configuration of one retry site.
type Policy struct {
	// Name labels logs and metrics (e.g. "token_exchange").
	Name string

	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int

	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the delay after every failed attempt.
	Multiplier float64
}

// TokenExchangePolicy is used for the OAuth client-credentials exchange.
func TokenExchangePolicy() Policy {
	return Policy{
		Name:           "token_exchange",
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// FlightsPolicy is used for requests to the flights provider.
func FlightsPolicy() Policy {
	return Policy{
		Name:           "flights",
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// WeatherPolicy is used for requests to the weather archive.
func WeatherPolicy() Policy {
	return Policy{
		Name:           "weather",
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// Validate reports whether the policy can be used.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy %q: max attempts must be >= 1 (got %d)", p.Name, p.MaxAttempts)
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return fmt.Errorf("retry policy %q: backoff must not be negative", p.Name)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("retry policy %q: multiplier must be >= 1 (got %v)", p.Name, p.Multiplier)
	}
	return nil
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// retryableError marks an error as eligible for another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as retryable. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err, or any error it wraps, was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Do runs op until it succeeds, returns an error not marked Retryable, or the
// policy's attempts are used up. Waits use clock so tests can drive them.
// The returned error wraps ErrRetryExhausted and the last attempt's error when
// attempts run out.
func Do(ctx context.Context, clock clockwork.Clock, p Policy, op func(ctx context.Context, attempt int) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("operation", p.Name).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt >= p.MaxAttempts {
			break
		}

		backoff := p.Backoff(attempt)
		retriesTotal.WithLabelValues(p.Name).Inc()
		retryBackoffSeconds.WithLabelValues(p.Name).Observe(backoff.Seconds())

		log.Warn().
			Err(err).
			Str("operation", p.Name).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: wait before attempt %d: %w", p.Name, attempt+1, ctx.Err())
		case <-clock.After(backoff):
		}
	}

	var r *retryableError
	if errors.As(lastErr, &r) {
		lastErr = r.err
	}

	retryExhaustedTotal.WithLabelValues(p.Name).Inc()
	log.Warn().
		Str("operation", p.Name).
		Int("max_attempts", p.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, p.MaxAttempts, lastErr)
}
