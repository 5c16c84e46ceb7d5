package state

import (
	"context"
	"sync"

	"github.com/agisilaos/farewatch/internal/model"
)

// MemoryStore keeps deal state for the life of the process.
type MemoryStore struct {
	mu     sync.Mutex
	routes map[string]model.DealState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{routes: map[string]model.DealState{}}
}

func (s *MemoryStore) Load(_ context.Context, route string) (model.DealState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routes[route], nil
}

func (s *MemoryStore) Save(_ context.Context, route string, st model.DealState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route] = st
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, route string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, route)
	return nil
}
