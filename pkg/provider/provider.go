// Package provider builds the HTTP requests for the two upstream data
// providers: the OpenSky flights API and the Open-Meteo weather archive.
package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/aero-ingest/pkg/auth"
	"github.com/Sternrassler/aero-ingest/pkg/fetch"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
)

// Provider names used as labels and throttle-state keys.
const (
	NameOpenSky   = "opensky"
	NameOpenMeteo = "open-meteo"
)

const (
	// DefaultOpenSkyBaseURL is the OpenSky REST API root.
	DefaultOpenSkyBaseURL = "https://opensky-network.org/api"

	// DefaultArchiveURL is the Open-Meteo historical weather endpoint.
	DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

	// WeatherTimezone is the timezone weather series are requested in.
	WeatherTimezone = "UTC"
)

// DefaultHourly returns the hourly weather variables requested by default.
func DefaultHourly() []string {
	return []string{"temperature_2m", "precipitation", "wind_speed_10m", "cloud_cover"}
}

// TokenSource supplies the run's Authorization token.
type TokenSource interface {
	Token() (auth.Token, error)
}

// OpenSky builds flights requests.
type OpenSky struct {
	baseURL string
	tokens  TokenSource
}

// NewOpenSky creates an OpenSky request builder. An empty baseURL uses the default.
func NewOpenSky(baseURL string, tokens TokenSource) *OpenSky {
	if baseURL == "" {
		baseURL = DefaultOpenSkyBaseURL
	}
	return &OpenSky{baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens}
}

// Name returns the provider name.
func (o *OpenSky) Name() string { return NameOpenSky }

// Request returns GET {base}/flights/{kind}?airport=&begin=&end= for the
// unit's day, authorized with the run's token.
func (o *OpenSky) Request(u workunit.Unit) (fetch.Request, error) {
	if u.Kind != workunit.KindDeparture && u.Kind != workunit.KindArrival {
		return fetch.Request{}, fmt.Errorf("opensky: unsupported unit kind %q", u.Kind)
	}

	token, err := o.tokens.Token()
	if err != nil {
		return fetch.Request{}, fmt.Errorf("opensky: %w", err)
	}

	begin, end := workunit.DayWindow(u.Date)
	return fetch.Request{
		URL: o.baseURL + "/flights/" + string(u.Kind),
		Params: url.Values{
			"airport": {u.Airport.ICAO},
			"begin":   {strconv.FormatInt(begin, 10)},
			"end":     {strconv.FormatInt(end, 10)},
		},
		Header: http.Header{"Authorization": {token.Header()}},
	}, nil
}

// OpenMeteo builds weather archive requests. It needs no authentication.
type OpenMeteo struct {
	archiveURL string
	hourly     []string
}

// NewOpenMeteo creates a weather request builder. Empty arguments use the defaults.
func NewOpenMeteo(archiveURL string, hourly []string) *OpenMeteo {
	if archiveURL == "" {
		archiveURL = DefaultArchiveURL
	}
	if len(hourly) == 0 {
		hourly = DefaultHourly()
	}
	return &OpenMeteo{archiveURL: archiveURL, hourly: hourly}
}

// Name returns the provider name.
func (o *OpenMeteo) Name() string { return NameOpenMeteo }

// Request returns the archive query for one airport and day.
func (o *OpenMeteo) Request(u workunit.Unit) (fetch.Request, error) {
	if u.Kind != workunit.KindWeather {
		return fetch.Request{}, fmt.Errorf("open-meteo: unsupported unit kind %q", u.Kind)
	}
	if !u.Airport.HasCoordinates {
		return fetch.Request{}, fmt.Errorf("open-meteo: airport %s has no coordinates", u.Airport.ICAO)
	}

	day := u.Day()
	return fetch.Request{
		URL: o.archiveURL,
		Params: url.Values{
			"latitude":   {strconv.FormatFloat(u.Airport.Latitude, 'f', -1, 64)},
			"longitude":  {strconv.FormatFloat(u.Airport.Longitude, 'f', -1, 64)},
			"start_date": {day},
			"end_date":   {day},
			"hourly":     {strings.Join(o.hourly, ",")},
			"timezone":   {WeatherTimezone},
		},
	}, nil
}
