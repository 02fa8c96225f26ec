package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_rate_limit_remaining",
		Help: "Request credits remaining as reported by the provider",
	}, []string{"provider"})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_rate_limit_waits_total",
		Help: "Total number of requests delayed by provider throttling",
	}, []string{"provider"})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_rate_limit_wait_seconds",
		Help:    "Time spent waiting for provider throttling to lift",
		Buckets: []float64{1, 5, 10, 30, 60, 300},
	}, []string{"provider"})
)

// Tracker records provider throttling and gates requests on it.
type Tracker struct {
	store  Store
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewTracker creates a tracker. A nil store falls back to a MemoryStore and a
// nil clock to the real clock.
func NewTracker(store Store, clock clockwork.Clock, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// GetState returns the provider's current throttle state.
func (t *Tracker) GetState(ctx context.Context, provider string) (*State, error) {
	state, err := t.store.Get(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders records the provider's remaining credits from a response.
// Responses without the header leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, provider string, headers http.Header) error {
	remaining, ok, err := ParseRemaining(headers)
	if err != nil || !ok {
		return err
	}

	state, err := t.GetState(ctx, provider)
	if err != nil {
		return err
	}
	state.Remaining = remaining
	state.LastUpdate = t.clock.Now()

	if err := t.store.Set(ctx, provider, state); err != nil {
		return fmt.Errorf("set rate limit state: %w", err)
	}

	rateLimitRemaining.WithLabelValues(provider).Set(float64(remaining))

	if state.IsLow() {
		t.logger.Warn().
			Str("provider", provider).
			Int("remaining", remaining).
			Msg("Provider request credits running low")
	} else {
		t.logger.Debug().
			Str("provider", provider).
			Int("remaining", remaining).
			Msg("Rate limit state updated")
	}
	return nil
}

// Throttle records that the provider asked us to back off for retryAfter and
// then blocks until that deadline has passed. An existing later deadline is kept.
func (t *Tracker) Throttle(ctx context.Context, provider string, retryAfter time.Duration) error {
	state, err := t.GetState(ctx, provider)
	if err != nil {
		return err
	}

	now := t.clock.Now()
	if until := now.Add(retryAfter); until.After(state.BlockedUntil) {
		state.BlockedUntil = until
	}
	state.LastUpdate = now

	if err := t.store.Set(ctx, provider, state); err != nil {
		return fmt.Errorf("set rate limit state: %w", err)
	}

	t.logger.Warn().
		Str("provider", provider).
		Dur("retry_after", retryAfter).
		Time("blocked_until", state.BlockedUntil).
		Msg("Provider throttled requests")

	_, err = t.Wait(ctx, provider)
	return err
}

// Wait blocks until the provider's blocked-until deadline has passed and
// returns how long it waited.
func (t *Tracker) Wait(ctx context.Context, provider string) (time.Duration, error) {
	state, err := t.GetState(ctx, provider)
	if err != nil {
		return 0, err
	}

	wait := state.TimeUntilUnblocked(t.clock.Now())
	if wait <= 0 {
		return 0, nil
	}

	rateLimitWaitsTotal.WithLabelValues(provider).Inc()
	rateLimitWaitSeconds.WithLabelValues(provider).Observe(wait.Seconds())

	t.logger.Info().
		Str("provider", provider).
		Dur("wait", wait).
		Msg("Waiting for provider throttling to lift")

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("wait for %s throttling: %w", provider, ctx.Err())
	case <-t.clock.After(wait):
	}
	return wait, nil
}
