// Package config loads the ingest configuration from a YAML file, an optional
// .env file and environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/auth"
	"github.com/Sternrassler/aero-ingest/pkg/provider"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.yaml"

// Storage backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Environment variables overriding file values.
const (
	EnvOpenSkyClientID     = "OPENSKY_CLIENT_ID"
	EnvOpenSkyClientSecret = "OPENSKY_CLIENT_SECRET"
	EnvOpenSkyUsername     = "OPENSKY_USERNAME"
	EnvOpenSkyPassword     = "OPENSKY_PASSWORD"
	EnvRedisURL            = "REDIS_URL"
	EnvSentryDSN           = "SENTRY_DSN"
	EnvAWSAccessKeyID      = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
)

// Config is the full ingest configuration.
type Config struct {
	OpenSky   OpenSkyConfig   `yaml:"opensky"`
	OpenMeteo OpenMeteoConfig `yaml:"open_meteo"`
	Airports  AirportsConfig  `yaml:"airports"`
	Storage   StorageConfig   `yaml:"storage"`
	Run       RunConfig       `yaml:"run"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	SentryDSN string          `yaml:"sentry_dsn"`
}

// OpenSkyConfig configures the flights provider.
type OpenSkyConfig struct {
	BaseURL  string      `yaml:"base_url" validate:"omitempty,url"`
	TokenURL string      `yaml:"token_url" validate:"omitempty,url"`
	OAuth    OAuthConfig `yaml:"oauth"`
	Username string      `yaml:"username"`
	Password string      `yaml:"password"`
}

// OAuthConfig holds OAuth client credentials.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// OpenMeteoConfig configures the weather provider.
type OpenMeteoConfig struct {
	ArchiveURL string   `yaml:"archive_url" validate:"omitempty,url"`
	Hourly     []string `yaml:"hourly" validate:"dive,required"`
}

// AirportsConfig points at the airport reference file.
type AirportsConfig struct {
	File string `yaml:"file" validate:"required"`
}

// StorageConfig selects where raw units are written.
type StorageConfig struct {
	RawDir  string   `yaml:"raw_dir"`
	Backend string   `yaml:"backend" validate:"oneof=file s3"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// RunConfig holds run defaults.
type RunConfig struct {
	StartDate string `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`

	// Sleep is the pacing delay between units in seconds.
	Sleep float64 `yaml:"sleep" validate:"gte=0"`
}

// Delay returns Sleep as a duration.
func (r RunConfig) Delay() time.Duration {
	return time.Duration(r.Sleep * float64(time.Second))
}

// RedisConfig enables the shared throttle store when Addr or URL is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	URL      string `yaml:"url"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != "" || r.URL != ""
}

// Options returns go-redis client options. URL wins over Addr.
func (r RedisConfig) Options() (*redis.Options, error) {
	if r.URL != "" {
		opts, err := redis.ParseURL(r.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	if r.Addr == "" {
		return nil, errors.New("redis is not configured")
	}
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout in seconds, at most two minutes.
	Timeout float64 `yaml:"timeout" validate:"gt=0,lte=120"`
}

// RequestTimeout returns Timeout as a duration.
func (h HTTPConfig) RequestTimeout() time.Duration {
	return time.Duration(h.Timeout * float64(time.Second))
}

// Default returns a configuration with every optional value set.
func Default() *Config {
	return &Config{
		OpenSky: OpenSkyConfig{
			BaseURL:  provider.DefaultOpenSkyBaseURL,
			TokenURL: auth.DefaultTokenURL,
		},
		OpenMeteo: OpenMeteoConfig{
			ArchiveURL: provider.DefaultArchiveURL,
			Hourly:     provider.DefaultHourly(),
		},
		Airports: AirportsConfig{File: workunit.DefaultAirportsFile},
		Storage: StorageConfig{
			RawDir:  "data/raw",
			Backend: BackendFile,
		},
		Run:  RunConfig{Sleep: 1.0},
		HTTP: HTTPConfig{Timeout: 30},
	}
}

// Load reads path on top of Default, loads .env if present and applies
// environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s (copy config.example.yaml to config.yaml): %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.OpenSky.OAuth.ClientID, EnvOpenSkyClientID)
	override(&c.OpenSky.OAuth.ClientSecret, EnvOpenSkyClientSecret)
	override(&c.OpenSky.Username, EnvOpenSkyUsername)
	override(&c.OpenSky.Password, EnvOpenSkyPassword)
	override(&c.Redis.URL, EnvRedisURL)
	override(&c.SentryDSN, EnvSentryDSN)
	override(&c.Storage.S3.AccessKeyID, EnvAWSAccessKeyID)
	override(&c.Storage.S3.SecretAccessKey, EnvAWSSecretAccessKey)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.RawDir == "" {
			return errors.New("invalid config: storage.raw_dir is required for the file backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("invalid config: storage.s3.bucket is required for the s3 backend")
		}
	}
	if (c.Run.StartDate == "") != (c.Run.EndDate == "") {
		return errors.New("invalid config: run.start_date and run.end_date must be set together")
	}
	return nil
}

// Credentials returns the flights provider credentials.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		ClientID:     c.OpenSky.OAuth.ClientID,
		ClientSecret: c.OpenSky.OAuth.ClientSecret,
		Username:     c.OpenSky.Username,
		Password:     c.OpenSky.Password,
	}
}

// ResolveDates picks the run's date range: date wins, then start and end
// together, then run.start_date/run.end_date.
func (c *Config) ResolveDates(date, start, end string) (workunit.DateRange, error) {
	switch {
	case date != "":
		return workunit.SingleDay(date)
	case start != "" && end != "":
		return workunit.NewDateRange(start, end)
	case start != "" || end != "":
		return workunit.DateRange{}, errors.New("--start and --end must be given together")
	case c.Run.StartDate != "":
		return workunit.NewDateRange(c.Run.StartDate, c.Run.EndDate)
	default:
		return workunit.DateRange{}, errors.New("no dates: pass --date, --start/--end or set run.start_date/run.end_date")
	}
}
