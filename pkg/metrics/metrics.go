// Package metrics exposes the ingest Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (retry, ratelimit,
// fetch, ingest) via promauto to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the ingester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done and returns the bound
// address. Use port 0 to pick a free port.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", listener.Addr().String()).Msg("Metrics server listening")
	return listener.Addr(), nil
}

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - ingest_requests_total{provider, status} (Counter): Provider requests by HTTP status ("error" for transport failures)
//   - ingest_request_duration_seconds{provider} (Histogram): Provider request duration
//
// Retry Metrics (pkg/retry):
//   - ingest_retries_total{operation} (Counter): Retry attempts by policy (token_exchange, flights, weather)
//   - ingest_retry_backoff_seconds{operation} (Histogram): Backoff duration by policy
//   - ingest_retry_exhausted_total{operation} (Counter): Operations that exhausted their attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ingest_rate_limit_remaining{provider} (Gauge): Request credits reported by the provider
//   - ingest_rate_limit_waits_total{provider} (Counter): Requests delayed by provider throttling
//   - ingest_rate_limit_wait_seconds{provider} (Histogram): Time spent waiting for throttling to lift
//
// Run Metrics (pkg/ingest):
//   - ingest_units_total{source, disposition} (Counter): Units by disposition (persisted, empty, failed)
//
// Example Prometheus Queries:
//
//   # Empty unit share
//   sum(rate(ingest_units_total{disposition="empty"}[1h])) / sum(rate(ingest_units_total[1h]))
//
//   # Throttling pressure
//   rate(ingest_rate_limit_waits_total[15m])
//
//   # Credits about to run out
//   ingest_rate_limit_remaining < 50
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ingest_request_duration_seconds_bucket[5m]))
