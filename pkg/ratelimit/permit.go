package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Permit is a single-slot gate: at most one request to a provider is in
// flight at any time, no matter how many goroutines share the fetcher.
type Permit struct {
	sem *semaphore.Weighted
}

// NewPermit creates a free permit.
func NewPermit() *Permit {
	return &Permit{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the permit is free or ctx is done. The returned func
// releases it and must be called exactly once.
func (p *Permit) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire request permit: %w", err)
	}
	return func() { p.sem.Release(1) }, nil
}
