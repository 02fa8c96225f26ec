package sink

import (
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
)

// Key returns the deterministic, slash-separated location of a unit relative
// to the storage root:
//
//	flights/2024-01-01/LFPG_departure.jsonl
//	weather/2024-01-01/LFPG.json
func Key(u workunit.Unit) string {
	day := u.Day()
	if u.Kind == workunit.KindWeather {
		return string(workunit.SourceWeather) + "/" + day + "/" + u.Airport.ICAO + ".json"
	}
	return string(workunit.SourceFlights) + "/" + day + "/" + u.Airport.ICAO + "_" + string(u.Kind) + ".jsonl"
}
