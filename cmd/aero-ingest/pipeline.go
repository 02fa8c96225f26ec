package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/aero-ingest/pkg/auth"
	"github.com/Sternrassler/aero-ingest/pkg/config"
	"github.com/Sternrassler/aero-ingest/pkg/fetch"
	"github.com/Sternrassler/aero-ingest/pkg/ingest"
	"github.com/Sternrassler/aero-ingest/pkg/logging"
	"github.com/Sternrassler/aero-ingest/pkg/provider"
	"github.com/Sternrassler/aero-ingest/pkg/ratelimit"
	"github.com/Sternrassler/aero-ingest/pkg/retry"
	"github.com/Sternrassler/aero-ingest/pkg/sink"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// pipeline is a fully wired orchestrator plus the resources it holds.
type pipeline struct {
	orchestrator *ingest.Orchestrator
	redis        *redis.Client
}

// Close releases the pipeline's resources.
func (p *pipeline) Close() error {
	if p.redis != nil {
		return p.redis.Close()
	}
	return nil
}

func buildPipeline(ctx context.Context, source workunit.Source, cfg *config.Config, logger zerolog.Logger) (*pipeline, error) {
	clock := clockwork.NewRealClock()
	httpClient := &http.Client{Timeout: cfg.HTTP.RequestTimeout()}
	p := &pipeline{}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.Enabled() {
		opts, err := cfg.Redis.Options()
		if err != nil {
			return nil, err
		}
		p.redis = redis.NewClient(opts)
		if err := p.redis.Ping(ctx).Err(); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Sharing throttle state via Redis")
		store = ratelimit.NewRedisStore(p.redis)
	}
	tracker := ratelimit.NewTracker(store, clock, logging.NewLogger("ratelimit"))

	writer, err := newWriter(ctx, cfg.Storage)
	if err != nil {
		p.Close()
		return nil, err
	}

	icfg := ingest.Config{
		Source: source,
		Sink:   sink.New(writer, logging.NewLogger("sink")),
		Clock:  clock,
		Logger: logging.NewLogger("ingest"),
	}

	fcfg := fetch.Config{
		HTTPClient: httpClient,
		Tracker:    tracker,
		Clock:      clock,
		Logger:     logging.NewLogger("fetch"),
	}

	switch source {
	case workunit.SourceFlights:
		manager := auth.NewManager(auth.Config{
			TokenURL:   cfg.OpenSky.TokenURL,
			HTTPClient: httpClient,
			Clock:      clock,
			Logger:     logging.NewLogger("auth"),
		})
		icfg.Auth = manager
		icfg.Builder = provider.NewOpenSky(cfg.OpenSky.BaseURL, manager)

		fcfg.Provider = provider.NameOpenSky
		fcfg.Policy = retry.FlightsPolicy()
		fcfg.Rules = fetch.FlightsRules()
		fcfg.Shape = fetch.ShapeArray

	case workunit.SourceWeather:
		icfg.Builder = provider.NewOpenMeteo(cfg.OpenMeteo.ArchiveURL, cfg.OpenMeteo.Hourly)

		fcfg.Provider = provider.NameOpenMeteo
		fcfg.Policy = retry.WeatherPolicy()
		fcfg.Rules = fetch.WeatherRules()
		fcfg.Shape = fetch.ShapeObject

	default:
		p.Close()
		return nil, fmt.Errorf("unknown source %q", source)
	}

	if icfg.Fetcher, err = fetch.New(fcfg); err != nil {
		p.Close()
		return nil, err
	}
	if p.orchestrator, err = ingest.New(icfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func newWriter(ctx context.Context, cfg config.StorageConfig) (sink.Writer, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return sink.NewS3Writer(ctx, sink.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return sink.NewFileWriter(cfg.RawDir), nil
	}
}
