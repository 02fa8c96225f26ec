package ratelimit

import (
	"context"
	"sync"
)

// Store persists throttle state per provider.
type Store interface {
	// Get returns the provider's state, or DefaultState if none was stored.
	Get(ctx context.Context, provider string) (*State, error)

	// Set replaces the provider's state.
	Set(ctx context.Context, provider string, state *State) error
}

// MemoryStore keeps throttle state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, provider string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[provider]
	if !ok {
		return DefaultState(), nil
	}
	return &state, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, provider string, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[provider] = *state
	return nil
}
