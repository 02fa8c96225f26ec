package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/aero-ingest/pkg/fetch"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
)

// Fields added to every persisted record.
const (
	FieldFlightType  = "flight_type"
	FieldAirportICAO = "airport_icao"
)

// ErrNotPersistable is returned for outcomes that must never reach storage.
var ErrNotPersistable = errors.New("outcome is not persistable")

// Encode converts a terminal outcome into the canonical bytes for u.
// Flights become one JSON record per line, each tagged with flight_type and
// airport_icao; Empty becomes an empty file. Weather becomes a single object
// tagged with airport_icao. Object keys are emitted sorted, so the same
// payload always encodes to the same bytes.
func Encode(u workunit.Unit, outcome fetch.Outcome) ([]byte, error) {
	switch outcome.Kind {
	case fetch.KindSuccess, fetch.KindEmpty:
	default:
		return nil, fmt.Errorf("%w: %s outcome for %s", ErrNotPersistable, outcome.Kind, u.ID())
	}

	if u.Kind == workunit.KindWeather {
		if outcome.Kind == fetch.KindEmpty {
			return nil, fmt.Errorf("%w: empty weather outcome for %s", ErrNotPersistable, u.ID())
		}
		return encodeWeather(u, outcome.Body)
	}

	if outcome.Kind == fetch.KindEmpty {
		return []byte{}, nil
	}
	return encodeFlights(u, outcome.Body)
}

func encodeFlights(u workunit.Unit, body json.RawMessage) ([]byte, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode flight records for %s: %w", u.ID(), err)
	}

	var buf bytes.Buffer
	for i, item := range raw {
		record, err := decodeObject(item)
		if err != nil {
			return nil, fmt.Errorf("decode flight record %d for %s: %w", i, u.ID(), err)
		}
		record[FieldFlightType] = string(u.Kind)
		record[FieldAirportICAO] = u.Airport.ICAO

		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode flight record %d for %s: %w", i, u.ID(), err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func encodeWeather(u workunit.Unit, body json.RawMessage) ([]byte, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("decode weather payload for %s: %w", u.ID(), err)
	}
	payload[FieldAirportICAO] = u.Airport.ICAO

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode weather payload for %s: %w", u.ID(), err)
	}
	return out, nil
}

// decodeObject decodes a JSON object keeping numbers verbatim.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("expected a JSON object")
	}
	return obj, nil
}
