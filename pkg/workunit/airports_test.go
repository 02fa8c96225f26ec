package workunit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const airportsCSV = `icao,latitude,longitude,timezone,country_code
LFPG,49.0097,2.5479,Europe/Paris,FR
EDDF,50.0333,8.5706,Europe/Berlin,DE
,51.0,3.0,Europe/Brussels,BE
lfpg,0,0,Europe/Paris,FR
EGLL,,,Europe/London,GB
`

func TestReadAirports(t *testing.T) {
	airports, err := ReadAirports(strings.NewReader(airportsCSV))
	require.NoError(t, err)

	require.Len(t, airports, 3)
	assert.Equal(t, "LFPG", airports[0].ICAO)
	assert.InDelta(t, 49.0097, airports[0].Latitude, 1e-9)
	assert.True(t, airports[0].HasCoordinates)
	assert.Equal(t, "Europe/Paris", airports[0].Timezone)
	assert.Equal(t, "FR", airports[0].CountryCode)

	assert.Equal(t, "EDDF", airports[1].ICAO)
	assert.Equal(t, "EGLL", airports[2].ICAO)
	assert.False(t, airports[2].HasCoordinates)
}

func TestReadAirports_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no icao column", input: "code,latitude\nLFPG,1\n"},
		{name: "bad latitude", input: "icao,latitude,longitude\nLFPG,north,2.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAirports(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadAirports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airports.csv")
	require.NoError(t, os.WriteFile(path, []byte(airportsCSV), 0o644))

	airports, err := LoadAirports(path)
	require.NoError(t, err)
	assert.Len(t, airports, 3)

	_, err = LoadAirports(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestWithCoordinates(t *testing.T) {
	airports, err := ReadAirports(strings.NewReader(airportsCSV))
	require.NoError(t, err)

	kept, dropped := WithCoordinates(airports)
	assert.Len(t, kept, 2)
	assert.Equal(t, []string{"EGLL"}, dropped)
}
