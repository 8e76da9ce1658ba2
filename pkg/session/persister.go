package session

import (
	"context"
	"sync"
)

// Persister is durable storage for the session State. Load on an empty
// backend returns the zero State and no error.
type Persister interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Clear(ctx context.Context) error
}

// Watcher is implemented by persisters that can tell when another process
// changed the stored state. Watch blocks until ctx is done and calls onChange
// with the freshly loaded state after every external change.
type Watcher interface {
	Watch(ctx context.Context, onChange func(State)) error
}

// MemoryStore is a Persister that lives and dies with the process.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saves int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load returns a copy of the held state.
func (m *MemoryStore) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone(), nil
}

// Save replaces the held state.
func (m *MemoryStore) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st.clone()
	m.saves++
	return nil
}

// Clear resets the held state.
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
	m.saves++
	return nil
}

// Saves counts writes, including clears.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
