package workunit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAirports(codes ...string) []Airport {
	airports := make([]Airport, 0, len(codes))
	for i, code := range codes {
		airports = append(airports, Airport{
			ICAO:           code,
			Latitude:       48 + float64(i),
			Longitude:      2 + float64(i),
			HasCoordinates: true,
		})
	}
	return airports
}

func collect(p *Plan) []Unit {
	var units []Unit
	for u := range p.Units() {
		units = append(units, u)
	}
	return units
}

func TestPlan_Counts(t *testing.T) {
	tests := []struct {
		name     string
		source   Source
		start    string
		end      string
		airports []string
		want     int
	}{
		{name: "flights one day one airport", source: SourceFlights, start: "2024-01-01", end: "2024-01-01", airports: []string{"LFPG"}, want: 2},
		{name: "flights 3 days 2 airports", source: SourceFlights, start: "2024-01-01", end: "2024-01-03", airports: []string{"LFPG", "EDDF"}, want: 12},
		{name: "weather 3 days 2 airports", source: SourceWeather, start: "2024-01-01", end: "2024-01-03", airports: []string{"LFPG", "EDDF"}, want: 6},
		{name: "flights across month end", source: SourceFlights, start: "2024-02-28", end: "2024-03-01", airports: []string{"EGLL", "EHAM", "LEMD"}, want: 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, err := NewDateRange(tt.start, tt.end)
			require.NoError(t, err)
			plan, err := NewPlan(tt.source, dates, testAirports(tt.airports...))
			require.NoError(t, err)

			units := collect(plan)
			assert.Len(t, units, tt.want)
			assert.Equal(t, tt.want, plan.Len())

			seen := make(map[string]bool)
			for _, u := range units {
				assert.False(t, seen[u.ID()], "duplicate unit %s", u.ID())
				seen[u.ID()] = true
			}
		})
	}
}

func TestPlan_Order(t *testing.T) {
	dates, err := NewDateRange("2024-01-01", "2024-01-02")
	require.NoError(t, err)
	// File order, deliberately not sorted.
	plan, err := NewPlan(SourceFlights, dates, testAirports("LFPG", "EDDF"))
	require.NoError(t, err)

	var ids []string
	for u := range plan.Units() {
		ids = append(ids, u.ID())
	}

	assert.Equal(t, []string{
		"2024-01-01/LFPG/departure",
		"2024-01-01/LFPG/arrival",
		"2024-01-01/EDDF/departure",
		"2024-01-01/EDDF/arrival",
		"2024-01-02/LFPG/departure",
		"2024-01-02/LFPG/arrival",
		"2024-01-02/EDDF/departure",
		"2024-01-02/EDDF/arrival",
	}, ids)
}

func TestPlan_Restartable(t *testing.T) {
	dates, err := SingleDay("2024-01-01")
	require.NoError(t, err)
	plan, err := NewPlan(SourceWeather, dates, testAirports("LFPG", "EDDF", "EGLL"))
	require.NoError(t, err)

	// Stop early, then iterate again from the start.
	for range plan.Units() {
		break
	}
	assert.Equal(t, collect(plan), collect(plan))
	assert.Len(t, collect(plan), 3)
}

func TestNewPlan_Invalid(t *testing.T) {
	dates, err := SingleDay("2024-01-01")
	require.NoError(t, err)

	_, err = NewPlan(SourceFlights, dates, testAirports("LFPG", "LFPG"))
	assert.Error(t, err, "duplicate airports")

	_, err = NewPlan(SourceFlights, dates, nil)
	assert.Error(t, err, "no airports")

	_, err = NewPlan(Source("trains"), dates, testAirports("LFPG"))
	assert.Error(t, err, "unknown source")

	noCoords := []Airport{{ICAO: "LFPG"}}
	_, err = NewPlan(SourceWeather, dates, noCoords)
	assert.Error(t, err, "weather needs coordinates")

	_, err = NewPlan(SourceFlights, dates, noCoords)
	assert.NoError(t, err, "flights only need the code")
}

func TestDateRange(t *testing.T) {
	_, err := NewDateRange("2024-01-02", "2024-01-01")
	assert.Error(t, err)

	_, err = NewDateRange("2024-13-01", "2024-13-02")
	assert.Error(t, err)

	r, err := NewDateRange("2023-12-31", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	days := r.Days()
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), days[1])
	assert.Equal(t, "2023-12-31..2024-01-02", r.String())
}

func TestDayWindow(t *testing.T) {
	day, err := ParseDate("2024-01-01")
	require.NoError(t, err)

	begin, end := DayWindow(day)
	assert.Equal(t, int64(1704067200), begin)
	assert.Equal(t, int64(1704153599), end)
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("weather")
	require.NoError(t, err)
	assert.Equal(t, SourceWeather, s)
	assert.Equal(t, []Kind{KindWeather}, s.Kinds())
	assert.Equal(t, []Kind{KindDeparture, KindArrival}, SourceFlights.Kinds())
	assert.Equal(t, SourceFlights, KindArrival.Source())

	_, err = ParseSource("trains")
	assert.Error(t, err)
}
