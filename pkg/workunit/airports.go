package workunit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultAirportsFile is the reference file produced by the airports bootstrap.
const DefaultAirportsFile = "data/reference/airports_eu.csv"

// Airport is one row of the airport reference set.
type Airport struct {
	ICAO           string
	Latitude       float64
	Longitude      float64
	HasCoordinates bool
	Timezone       string
	CountryCode    string
}

// LoadAirports reads the airport reference CSV at path.
func LoadAirports(path string) ([]Airport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open airports file: %w", err)
	}
	defer f.Close()

	airports, err := ReadAirports(f)
	if err != nil {
		return nil, fmt.Errorf("read airports file %s: %w", path, err)
	}
	return airports, nil
}

// ReadAirports parses an airport reference CSV with a header row. The icao
// column is required; latitude, longitude, timezone and country_code are
// optional. Rows without an ICAO code are dropped, and repeated codes keep
// their first occurrence. File order is preserved.
func ReadAirports(r io.Reader) ([]Airport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["icao"]; !ok {
		return nil, errors.New(`missing "icao" column`)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		airports []Airport
		seen     = make(map[string]struct{})
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		icao := strings.ToUpper(field(rec, "icao"))
		if icao == "" {
			continue
		}
		if _, dup := seen[icao]; dup {
			continue
		}
		seen[icao] = struct{}{}

		a := Airport{
			ICAO:        icao,
			Timezone:    field(rec, "timezone"),
			CountryCode: field(rec, "country_code"),
		}
		lat, lon := field(rec, "latitude"), field(rec, "longitude")
		if lat != "" && lon != "" {
			if a.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid latitude %q", line, lat)
			}
			if a.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid longitude %q", line, lon)
			}
			a.HasCoordinates = true
		}
		airports = append(airports, a)
	}
	return airports, nil
}

// WithCoordinates splits airports into those usable for weather requests and
// the ICAO codes of the ones lacking coordinates.
func WithCoordinates(airports []Airport) (kept []Airport, dropped []string) {
	for _, a := range airports {
		if a.HasCoordinates {
			kept = append(kept, a)
		} else {
			dropped = append(dropped, a.ICAO)
		}
	}
	return kept, dropped
}
