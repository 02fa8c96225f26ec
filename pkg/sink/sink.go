// Package sink persists fetch outcomes as one self-contained file or object
// per work unit at a deterministic location. Existing units are replaced,
// never merged, so re-running a unit is idempotent.
package sink

import (
	"context"
	"fmt"

	"github.com/Sternrassler/aero-ingest/pkg/fetch"
	"github.com/Sternrassler/aero-ingest/pkg/workunit"
	"github.com/rs/zerolog"
)

// Writer stores the bytes of one unit and returns where they went.
type Writer interface {
	Write(ctx context.Context, key string, data []byte) (location string, err error)
}

// Sink encodes outcomes and hands them to a Writer.
type Sink struct {
	writer Writer
	logger zerolog.Logger
}

// New creates a Sink.
func New(w Writer, logger zerolog.Logger) *Sink {
	return &Sink{writer: w, logger: logger}
}

// Persist writes the canonical representation of outcome for u.
func (s *Sink) Persist(ctx context.Context, u workunit.Unit, outcome fetch.Outcome) (string, error) {
	data, err := Encode(u, outcome)
	if err != nil {
		return "", err
	}

	location, err := s.writer.Write(ctx, Key(u), data)
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", u.ID(), err)
	}

	s.logger.Debug().
		Str("unit", u.ID()).
		Str("location", location).
		Int("bytes", len(data)).
		Msg("Unit written")
	return location, nil
}
