package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
opensky:
  oauth:
    client_id: file-client
    client_secret: file-secret
  username: file-user
  password: file-pass
airports:
  file: data/reference/airports_eu.csv
storage:
  raw_dir: /tmp/raw
run:
  start_date: "2024-01-01"
  end_date: "2024-01-03"
  sleep: 1.5
redis:
  addr: localhost:6379
  db: 2
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.OpenSky.OAuth.ClientID)
	assert.Equal(t, "https://opensky-network.org/api", cfg.OpenSky.BaseURL)
	assert.Equal(t, []string{"temperature_2m", "precipitation", "wind_speed_10m", "cloud_cover"}, cfg.OpenMeteo.Hourly)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 1500*time.Millisecond, cfg.Run.Delay())
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout())

	creds := cfg.Credentials()
	assert.True(t, creds.HasOAuth())
	assert.True(t, creds.HasBasic())

	require.True(t, cfg.Redis.Enabled())
	opts, err := cfg.Redis.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvOpenSkyClientID, "env-client")
	t.Setenv(EnvOpenSkyClientSecret, "env-secret")
	t.Setenv(EnvRedisURL, "redis://:pw@redis.internal:6380/4")
	t.Setenv(EnvSentryDSN, "https://key@sentry.example/1")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.OpenSky.OAuth.ClientID)
	assert.Equal(t, "env-secret", cfg.OpenSky.OAuth.ClientSecret)
	assert.Equal(t, "https://key@sentry.example/1", cfg.SentryDSN)

	opts, err := cfg.Redis.Options()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 4, opts.DB)
}

func TestParse_TimeoutCeiling(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  timeout: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.HTTP.RequestTimeout())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad backend", yaml: "storage:\n  backend: ftp\n"},
		{name: "s3 without bucket", yaml: "storage:\n  backend: s3\n"},
		{name: "file without raw_dir", yaml: "storage:\n  raw_dir: \"\"\n"},
		{name: "bad start date", yaml: "run:\n  start_date: 01/02/2024\n  end_date: \"2024-01-03\"\n"},
		{name: "start without end", yaml: "run:\n  start_date: \"2024-01-01\"\n"},
		{name: "negative sleep", yaml: "run:\n  sleep: -1\n"},
		{name: "zero timeout", yaml: "http:\n  timeout: 0\n"},
		{name: "timeout above two minutes", yaml: "http:\n  timeout: 121\n"},
		{name: "bad base url", yaml: "opensky:\n  base_url: not a url\n"},
		{name: "not yaml", yaml: "opensky: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/raw", cfg.Storage.RawDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveDates(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	r, err := cfg.ResolveDates("2024-02-01", "2024-03-01", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01..2024-02-01", r.String(), "--date wins")

	r, err = cfg.ResolveDates("", "2024-03-01", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01..2024-03-05", r.String())

	r, err = cfg.ResolveDates("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01..2024-01-03", r.String(), "falls back to config")

	_, err = cfg.ResolveDates("", "2024-03-01", "")
	assert.Error(t, err)

	_, err = cfg.ResolveDates("", "2024-03-05", "2024-03-01")
	assert.Error(t, err)

	empty := Default()
	_, err = empty.ResolveDates("", "", "")
	assert.Error(t, err)
}
