// Package workunit defines the (date, airport, kind) units an ingest run
// fetches and the Plan that enumerates them in a fixed order.
package workunit

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in flags, config and paths.
const DateLayout = "2006-01-02"

// Kind is the sub-category of a unit.
type Kind string

const (
	KindDeparture Kind = "departure"
	KindArrival   Kind = "arrival"
	KindWeather   Kind = "weather"
)

// Source is the provider family a run ingests from.
type Source string

const (
	SourceFlights Source = "flights"
	SourceWeather Source = "weather"
)

// Kinds returns the unit kinds of a source in iteration order.
func (s Source) Kinds() []Kind {
	switch s {
	case SourceFlights:
		return []Kind{KindDeparture, KindArrival}
	case SourceWeather:
		return []Kind{KindWeather}
	default:
		return nil
	}
}

// ParseSource parses "flights" or "weather".
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceFlights, SourceWeather:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q (want %q or %q)", s, SourceFlights, SourceWeather)
	}
}

// Source returns the source a kind belongs to.
func (k Kind) Source() Source {
	if k == KindWeather {
		return SourceWeather
	}
	return SourceFlights
}

// Unit is one atomic fetch-and-persist item. Units are values and never mutated.
type Unit struct {
	Date    time.Time
	Airport Airport
	Kind    Kind
}

// ID returns the unit identity "YYYY-MM-DD/ICAO/kind".
func (u Unit) ID() string {
	return u.Day() + "/" + u.Airport.ICAO + "/" + string(u.Kind)
}

// Day returns the unit's date as YYYY-MM-DD.
func (u Unit) Day() string {
	return u.Date.Format(DateLayout)
}

// String implements fmt.Stringer.
func (u Unit) String() string {
	return u.ID()
}
