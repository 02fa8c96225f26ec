package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/auth"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token auth.Token
	err   error
}

func (s staticTokens) Token() (auth.Token, error) { return s.token, s.err }

var lfpg = workunit.Airport{ICAO: "LFPG", Latitude: 49.0097, Longitude: 2.5479, HasCoordinates: true}

func unit(kind workunit.Kind) workunit.Unit {
	return workunit.Unit{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Airport: lfpg, Kind: kind}
}

func TestOpenSky_Request(t *testing.T) {
	o := NewOpenSky("https://example.test/api/", staticTokens{token: auth.Token{Value: "abc", Scheme: auth.SchemeBearer}})
	assert.Equal(t, NameOpenSky, o.Name())

	req, err := o.Request(unit(workunit.KindArrival))
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/api/flights/arrival", req.URL)
	assert.Equal(t, "LFPG", req.Params.Get("airport"))
	assert.Equal(t, "1704067200", req.Params.Get("begin"))
	assert.Equal(t, "1704153599", req.Params.Get("end"))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestOpenSky_RequestErrors(t *testing.T) {
	o := NewOpenSky("", staticTokens{err: auth.ErrNotAuthenticated})

	_, err := o.Request(unit(workunit.KindDeparture))
	assert.True(t, errors.Is(err, auth.ErrNotAuthenticated))

	_, err = o.Request(unit(workunit.KindWeather))
	assert.Error(t, err)
}

func TestOpenMeteo_Request(t *testing.T) {
	o := NewOpenMeteo("", nil)
	assert.Equal(t, NameOpenMeteo, o.Name())

	req, err := o.Request(unit(workunit.KindWeather))
	require.NoError(t, err)

	assert.Equal(t, DefaultArchiveURL, req.URL)
	assert.Equal(t, "49.0097", req.Params.Get("latitude"))
	assert.Equal(t, "2.5479", req.Params.Get("longitude"))
	assert.Equal(t, "2024-01-01", req.Params.Get("start_date"))
	assert.Equal(t, "2024-01-01", req.Params.Get("end_date"))
	assert.Equal(t, "temperature_2m,precipitation,wind_speed_10m,cloud_cover", req.Params.Get("hourly"))
	assert.Equal(t, "UTC", req.Params.Get("timezone"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestOpenMeteo_RequestErrors(t *testing.T) {
	o := NewOpenMeteo("https://example.test/archive", []string{"temperature_2m"})

	_, err := o.Request(unit(workunit.KindDeparture))
	assert.Error(t, err)

	u := unit(workunit.KindWeather)
	u.Airport.HasCoordinates = false
	_, err = o.Request(u)
	assert.Error(t, err)
}
