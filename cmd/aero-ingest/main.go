package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/config"
	"github.com/Sternrassler/aero-ingest/pkg/ingest"
	"github.com/Sternrassler/aero-ingest/pkg/logging"
	"github.com/Sternrassler/aero-ingest/pkg/metrics"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
)

const usageHeader = `Usage: aero-ingest <flights|weather> [flags]

Fetches raw flight movements (OpenSky) or hourly weather (Open-Meteo archive)
per airport and day and writes one file per unit.

Flags:
`

// errUsage marks argument errors; main prints the usage for them.
var errUsage = errors.New("usage error")

type options struct {
	source      workunit.Source
	configPath  string
	date        string
	start       string
	end         string
	sleep       time.Duration
	sleepSet    bool
	verbose     bool
	pretty      bool
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("aero-ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageHeader)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "path to the YAML config file")
	fs.StringVar(&opts.date, "date", "", "single day to ingest (YYYY-MM-DD)")
	fs.StringVar(&opts.start, "start", "", "first day to ingest (YYYY-MM-DD, requires --end)")
	fs.StringVar(&opts.end, "end", "", "last day to ingest (YYYY-MM-DD, requires --start)")
	fs.DurationVar(&opts.sleep, "sleep", time.Second, "pacing delay between units (overrides run.sleep)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose (debug) logging")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable console logs instead of JSON")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (disabled when empty)")

	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}
	opts.sleepSet = fs.Changed("sleep")

	if fs.NArg() != 1 {
		fs.Usage()
		return opts, fmt.Errorf("%w: expected exactly one source (flights or weather)", errUsage)
	}
	source, err := workunit.ParseSource(fs.Arg(0))
	if err != nil {
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}
	opts.source = source

	if opts.date != "" && (opts.start != "" || opts.end != "") {
		return opts, fmt.Errorf("%w: --date cannot be combined with --start/--end", errUsage)
	}
	if opts.sleepSet && opts.sleep < 0 {
		return opts, fmt.Errorf("%w: --sleep must not be negative", errUsage)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	level := logging.LevelInfo
	if opts.verbose {
		level = logging.LevelDebug
	}
	logging.Setup(logging.Config{Level: level, Pretty: opts.pretty, Output: stderr})
	logger := logging.NewLogger("aero-ingest")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	dates, err := cfg.ResolveDates(opts.date, opts.start, opts.end)
	if err != nil {
		return err
	}
	delay := cfg.Run.Delay()
	if opts.sleepSet {
		delay = opts.sleep
	}

	if cfg.SentryDSN != "" {
		if err := initSentry(cfg.SentryDSN); err != nil {
			logger.Warn().Err(err).Msg("Sentry initialization failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if opts.metricsAddr != "" {
		if _, err := metrics.Serve(ctx, opts.metricsAddr, logger); err != nil {
			return err
		}
	}

	p, err := buildPipeline(ctx, opts.source, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	airports, err := loadAirports(cfg.Airports.File, opts.source, logger)
	if err != nil {
		return err
	}

	report, err := p.orchestrator.Run(ctx, ingest.Params{
		Dates:       dates,
		Airports:    airports,
		Credentials: cfg.Credentials(),
		Delay:       delay,
	})
	if err != nil {
		reportAbort(report, err)
		return err
	}

	logger.Info().
		Str("run_id", report.RunID).
		Int("persisted", report.Persisted).
		Int("empty", report.Empty).
		Dur("duration", report.Duration()).
		Msg("Ingest finished")
	return nil
}

func loadAirports(path string, source workunit.Source, logger zerolog.Logger) ([]workunit.Airport, error) {
	airports, err := workunit.LoadAirports(path)
	if err != nil {
		return nil, err
	}
	if source != workunit.SourceWeather {
		return airports, nil
	}

	kept, dropped := workunit.WithCoordinates(airports)
	if len(dropped) > 0 {
		logger.Warn().
			Strs("airports", dropped).
			Msg("Skipping airports without coordinates for weather")
	}
	return kept, nil
}

func initSentry(dsn string) error {
	release := version
	if commit != "none" {
		release = version + "-" + commit
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: "aero-ingest@" + release,
	})
}

// reportAbort sends an aborted run to Sentry. Without sentry.Init it is a no-op.
func reportAbort(report *ingest.Report, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if report != nil {
			scope.SetTag("run_id", report.RunID)
			scope.SetTag("source", string(report.Source))
			scope.SetContext("report", sentry.Context{
				"units":     report.Units,
				"persisted": report.Persisted,
				"empty":     report.Empty,
			})
		}
		var uerr *ingest.UnitError
		if errors.As(err, &uerr) {
			scope.SetTag("unit", uerr.Unit.ID())
			scope.SetTag("stage", string(uerr.Stage))
		}
		sentry.CaptureException(err)
	})
}
