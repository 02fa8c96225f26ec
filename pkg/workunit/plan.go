package workunit

import (
	"errors"
	"fmt"
	"iter"
)

// Plan is the ordered, finite set of units of one run.
type Plan struct {
	source   Source
	dates    DateRange
	airports []Airport
	kinds    []Kind
}

// NewPlan validates the inputs of a run. Airports must be distinct; weather
// airports must carry coordinates.
func NewPlan(source Source, dates DateRange, airports []Airport) (*Plan, error) {
	kinds := source.Kinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	if dates.End.Before(dates.Start) {
		return nil, fmt.Errorf("invalid date range %s", dates)
	}
	if len(airports) == 0 {
		return nil, errors.New("no airports to ingest")
	}

	seen := make(map[string]struct{}, len(airports))
	for _, a := range airports {
		if a.ICAO == "" {
			return nil, errors.New("airport without ICAO code")
		}
		if _, dup := seen[a.ICAO]; dup {
			return nil, fmt.Errorf("duplicate airport %s", a.ICAO)
		}
		seen[a.ICAO] = struct{}{}
		if source == SourceWeather && !a.HasCoordinates {
			return nil, fmt.Errorf("airport %s has no coordinates", a.ICAO)
		}
	}

	return &Plan{
		source:   source,
		dates:    dates,
		airports: append([]Airport(nil), airports...),
		kinds:    kinds,
	}, nil
}

// Source returns the plan's source.
func (p *Plan) Source() Source { return p.source }

// Dates returns the plan's date range.
func (p *Plan) Dates() DateRange { return p.dates }

// Len returns the number of units Units yields: days x airports x kinds.
func (p *Plan) Len() int {
	return p.dates.Len() * len(p.airports) * len(p.kinds)
}

// Units yields every unit: dates ascending, then airports in the given order,
// then kinds. Each call starts a fresh iteration.
func (p *Plan) Units() iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for _, day := range p.dates.Days() {
			for _, airport := range p.airports {
				for _, kind := range p.kinds {
					if !yield(Unit{Date: day, Airport: airport, Kind: kind}) {
						return
					}
				}
			}
		}
	}
}
