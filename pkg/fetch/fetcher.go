// Package fetch issues one logical HTTP request against a data provider,
// classifies the response with an ordered rule chain and retries transient
// failures under a retry.Policy. Provider throttling (429) is honored through
// a ratelimit.Tracker before the policy's own backoff applies.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/ratelimit"
	"github.com/Sternrassler/aero-ingest/pkg/retry"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for provider requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Total number of provider requests by status code",
	}, []string{"provider", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_request_duration_seconds",
		Help:    "Provider request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

// DefaultUserAgent identifies the ingester to providers.
const DefaultUserAgent = "aero-ingest/1.0"

// Shape is the JSON shape a successful body must have.
type Shape int

const (
	// ShapeAny accepts any valid JSON.
	ShapeAny Shape = iota

	// ShapeArray accepts an array of objects or null (the flights provider's "nothing").
	ShapeArray

	// ShapeObject accepts a single object.
	ShapeObject
)

// Request is one logical provider request.
type Request struct {
	URL    string
	Params url.Values
	Header http.Header
}

// target returns the full request URL including the query.
func (r Request) target() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for key, values := range r.Params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Outcome is the terminal result of a Fetch.
type Outcome struct {
	Kind       Kind
	Reason     Reason
	StatusCode int
	Body       json.RawMessage
	Attempts   int
}

// Config configures a Fetcher.
type Config struct {
	// Provider labels logs, metrics and throttle state (e.g. "opensky").
	Provider string

	HTTPClient *http.Client
	Policy     retry.Policy
	Rules      Rules
	Shape      Shape

	// Tracker holds the provider's throttle state. Defaults to an in-memory tracker.
	Tracker *ratelimit.Tracker

	UserAgent string
	Clock     clockwork.Clock
	Logger    zerolog.Logger
}

// Fetcher performs classified, retried requests against one provider.
// At most one request per Fetcher is in flight at a time.
type Fetcher struct {
	provider   string
	httpClient *http.Client
	policy     retry.Policy
	rules      Rules
	shape      Shape
	tracker    *ratelimit.Tracker
	permit     *ratelimit.Permit
	userAgent  string
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Provider == "" {
		return nil, errors.New("fetch: provider name is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, errors.New("fetch: classification rules are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = ratelimit.NewTracker(nil, cfg.Clock, cfg.Logger)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Fetcher{
		provider:   cfg.Provider,
		httpClient: cfg.HTTPClient,
		policy:     cfg.Policy,
		rules:      cfg.Rules,
		shape:      cfg.Shape,
		tracker:    cfg.Tracker,
		permit:     ratelimit.NewPermit(),
		userAgent:  cfg.UserAgent,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With().Str("provider", cfg.Provider).Logger(),
	}, nil
}

// Provider returns the provider name the fetcher was created for.
func (f *Fetcher) Provider() string {
	return f.provider
}

// Fetch performs req until it yields a terminal outcome. Success and Empty
// return a nil error; a fatal outcome is returned together with an *Error
// describing it.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Outcome, error) {
	endpoint := req.URL
	target, err := req.target()
	if err != nil {
		fe := newError(ReasonInvalidRequest, 0, endpoint, "", err)
		f.logger.Error().Err(fe).Msg("Request not sent")
		return Outcome{Kind: KindFatal, Reason: ReasonInvalidRequest}, fe
	}

	var (
		outcome  Outcome
		attempts int
	)
	err = retry.Do(ctx, f.clock, f.policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		o, err := f.attempt(ctx, endpoint, target, req.Header)
		outcome = o
		return err
	})
	outcome.Attempts = attempts
	if err == nil {
		return outcome, nil
	}

	var fe *Error
	switch {
	case errors.Is(err, retry.ErrRetryExhausted):
		status := 0
		if errors.As(err, &fe) {
			status = fe.StatusCode
		}
		fe = &Error{
			Reason:     ReasonRetriesExhausted,
			StatusCode: status,
			Endpoint:   endpoint,
			Err:        err,
		}
	case errors.As(err, &fe):
	default:
		fe = &Error{Reason: ReasonCanceled, Endpoint: endpoint, Err: err}
	}
	fe.Attempts = attempts

	f.logger.Error().
		Err(fe).
		Str("reason", string(fe.Reason)).
		Int("status", fe.StatusCode).
		Int("attempt", attempts).
		Msg("Request failed")

	return Outcome{
		Kind:       KindFatal,
		Reason:     fe.Reason,
		StatusCode: fe.StatusCode,
		Attempts:   attempts,
	}, fe
}

// attempt performs one HTTP round trip. Retryable failures are returned
// marked with retry.Retryable, fatal ones as a plain *Error. Context
// cancellation is returned unwrapped.
func (f *Fetcher) attempt(ctx context.Context, endpoint, target string, header http.Header) (Outcome, error) {
	if _, err := f.tracker.Wait(ctx, f.provider); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		f.logger.Warn().Err(err).Msg("Reading throttle state failed, continuing")
	}

	release, err := f.permit.Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{}, newError(ReasonInvalidRequest, 0, endpoint, "build request", err)
	}
	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	start := f.clock.Now()
	resp, err := f.httpClient.Do(httpReq)
	requestDuration.WithLabelValues(f.provider).Observe(f.clock.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(f.provider, "error").Inc()
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, retry.Retryable(newError(ReasonNetwork, 0, endpoint, "", err))
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	requestsTotal.WithLabelValues(f.provider, strconv.Itoa(status)).Inc()

	if err := f.tracker.UpdateFromHeaders(ctx, f.provider, resp.Header); err != nil {
		f.logger.Debug().Err(err).Msg("Ignoring rate limit headers")
	}

	kind, reason := f.rules.Classify(status)
	f.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", status).
		Str("outcome", string(kind)).
		Msg("Provider responded")

	switch kind {
	case KindEmpty:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{Kind: KindEmpty, Reason: reason, StatusCode: status}, nil

	case KindRetryable:
		_, _ = io.Copy(io.Discard, resp.Body)
		if reason == ReasonRateLimited {
			if err := f.honorRetryAfter(ctx, resp.Header); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{}, retry.Retryable(newError(reason, status, endpoint, "", nil))

	case KindFatal:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := string(bytes.TrimSpace(body))
		if reason == ReasonUnauthorized {
			msg = "provider rejected the credentials; check the configured client id/secret or username/password"
		}
		return Outcome{}, newError(reason, status, endpoint, msg, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, retry.Retryable(newError(ReasonNetwork, status, endpoint, "read body", err))
	}
	if err := checkShape(body, f.shape); err != nil {
		return Outcome{}, newError(ReasonMalformedResponse, status, endpoint, "", err)
	}

	return Outcome{Kind: KindSuccess, StatusCode: status, Body: json.RawMessage(body)}, nil
}

// honorRetryAfter blocks for the provider's retry-after hint, if any.
func (f *Fetcher) honorRetryAfter(ctx context.Context, h http.Header) error {
	signal := ratelimit.ParseSignal(h, f.clock.Now())
	if !signal.HasRetryAfter {
		f.logger.Warn().Msg("Rate limited without retry-after hint, using policy backoff")
		return nil
	}

	err := f.tracker.Throttle(ctx, f.provider, signal.RetryAfter)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Throttle state unavailable: still honor the hint locally.
	f.logger.Warn().Err(err).Dur("retry_after", signal.RetryAfter).Msg("Recording throttle state failed")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(signal.RetryAfter):
		return nil
	}
}

func checkShape(body []byte, shape Shape) error {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return errors.New("body is not valid JSON")
	}
	switch shape {
	case ShapeArray:
		if bytes.Equal(trimmed, []byte("null")) {
			return nil
		}
		if trimmed[0] != '[' {
			return errors.New("expected a JSON array")
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return fmt.Errorf("decode array: %w", err)
		}
		for i, elem := range elems {
			if e := bytes.TrimSpace(elem); len(e) == 0 || e[0] != '{' {
				return fmt.Errorf("element %d is not a JSON object", i)
			}
		}
	case ShapeObject:
		if trimmed[0] != '{' {
			return errors.New("expected a JSON object")
		}
	}
	return nil
}
