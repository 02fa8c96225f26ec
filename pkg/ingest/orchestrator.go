// Package ingest drives one ingest run: authenticate once, then fetch and
// persist every work unit strictly in sequence with a pacing delay between
// units. The first fatal unit aborts the run; units persisted before it stay.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/auth"
	"github.com/Sternrassler/aero-ingest/pkg/fetch"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_units_total",
	Help: "Total number of work units by final disposition",
}, []string{"source", "disposition"})

// Unit dispositions.
const (
	dispositionPersisted = "persisted"
	dispositionEmpty     = "empty"
	dispositionFailed    = "failed"
)

// Authenticator derives the run's token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (auth.Token, error)
}

// RequestBuilder turns a unit into a provider request.
type RequestBuilder interface {
	Request(u workunit.Unit) (fetch.Request, error)
}

// Fetcher performs a classified, retried request.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Outcome, error)
}

// Persister writes a unit's outcome.
type Persister interface {
	Persist(ctx context.Context, u workunit.Unit, outcome fetch.Outcome) (string, error)
}

// Config wires an Orchestrator.
type Config struct {
	Source workunit.Source

	// Auth is nil for sources that need no credentials.
	Auth Authenticator

	Builder RequestBuilder
	Fetcher Fetcher
	Sink    Persister

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Params are the inputs of one run.
type Params struct {
	Dates       workunit.DateRange
	Airports    []workunit.Airport
	Credentials auth.Credentials

	// Delay is the pacing pause after every unit.
	Delay time.Duration
}

// Orchestrator runs ingest jobs for one source.
type Orchestrator struct {
	source  workunit.Source
	auth    Authenticator
	builder RequestBuilder
	fetcher Fetcher
	sink    Persister
	clock   clockwork.Clock
	logger  zerolog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Source.Kinds()) == 0 {
		return nil, fmt.Errorf("ingest: unknown source %q", cfg.Source)
	}
	if cfg.Builder == nil || cfg.Fetcher == nil || cfg.Sink == nil {
		return nil, errors.New("ingest: builder, fetcher and sink are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Orchestrator{
		source:  cfg.Source,
		auth:    cfg.Auth,
		builder: cfg.Builder,
		fetcher: cfg.Fetcher,
		sink:    cfg.Sink,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Run executes one run and always returns its report. The error is non-nil
// exactly when the run ended Aborted; unit failures are *UnitError.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Source:    o.source,
		StartedAt: o.clock.Now(),
	}
	logger := o.logger.With().
		Str("run_id", report.RunID).
		Str("source", string(o.source)).
		Logger()

	abort := func(err error) (*Report, error) {
		report.State = StateAborted
		report.FinishedAt = o.clock.Now()
		logger.Error().
			Err(err).
			Int("persisted", report.Persisted).
			Int("units", report.Units).
			Msg("Run aborted")
		return report, err
	}

	if p.Delay < 0 {
		return abort(fmt.Errorf("pacing delay must not be negative (got %s)", p.Delay))
	}
	plan, err := workunit.NewPlan(o.source, p.Dates, p.Airports)
	if err != nil {
		return abort(fmt.Errorf("plan run: %w", err))
	}
	report.Units = plan.Len()

	logger.Info().
		Str("dates", p.Dates.String()).
		Int("airports", len(p.Airports)).
		Int("units", report.Units).
		Dur("delay", p.Delay).
		Msg("Run started")

	if o.auth != nil {
		o.enter(report, logger, StateAuthenticating)
		if _, err := o.auth.Authenticate(ctx, p.Credentials); err != nil {
			return abort(fmt.Errorf("authenticate: %w", err))
		}
	}

	for unit := range plan.Units() {
		o.enter(report, logger, StateIterating)
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		location, outcome, uerr := o.process(ctx, report, logger, unit)
		if uerr != nil {
			report.Failed++
			unitsTotal.WithLabelValues(string(o.source), dispositionFailed).Inc()
			return abort(uerr)
		}

		report.Persisted++
		report.Locations = append(report.Locations, location)
		disposition := dispositionPersisted
		if outcome.Kind == fetch.KindEmpty {
			report.Empty++
			disposition = dispositionEmpty
		}
		unitsTotal.WithLabelValues(string(o.source), disposition).Inc()

		logger.Info().
			Str("unit", unit.ID()).
			Str("outcome", string(outcome.Kind)).
			Int("attempt", outcome.Attempts).
			Str("location", location).
			Msg("Unit persisted")

		if err := o.pace(ctx, p.Delay); err != nil {
			return abort(err)
		}
	}

	report.State = StateCompleted
	report.FinishedAt = o.clock.Now()
	logger.Info().
		Int("units", report.Units).
		Int("persisted", report.Persisted).
		Int("empty", report.Empty).
		Dur("duration", report.Duration()).
		Msg("Run completed")
	return report, nil
}

// process fetches and persists one unit.
func (o *Orchestrator) process(ctx context.Context, report *Report, logger zerolog.Logger, u workunit.Unit) (string, fetch.Outcome, *UnitError) {
	o.enter(report, logger, StateFetching)

	req, err := o.builder.Request(u)
	if err != nil {
		return "", fetch.Outcome{}, &UnitError{Unit: u, Stage: StageRequest, Err: err}
	}

	outcome, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		return "", outcome, &UnitError{Unit: u, Stage: StageFetch, Err: err}
	}
	if outcome.Kind != fetch.KindSuccess && outcome.Kind != fetch.KindEmpty {
		return "", outcome, &UnitError{Unit: u, Stage: StageFetch, Err: fmt.Errorf("non-terminal outcome %s", outcome.Kind)}
	}

	o.enter(report, logger, StatePersisting)
	location, err := o.sink.Persist(ctx, u, outcome)
	if err != nil {
		return "", outcome, &UnitError{Unit: u, Stage: StagePersist, Err: err}
	}
	return location, outcome, nil
}

// pace blocks for the inter-unit delay.
func (o *Orchestrator) pace(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.clock.After(delay):
		return nil
	}
}

func (o *Orchestrator) enter(report *Report, logger zerolog.Logger, s State) {
	report.State = s
	logger.Trace().Str("state", string(s)).Msg("State transition")
}
