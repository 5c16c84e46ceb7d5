// Package history keeps the append-only log of price observations.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/agisilaos/farewatch/internal/model"
)

// ErrStorage wraps durable-backend failures. Appends are never retried.
var ErrStorage = errors.New("history storage failure")

// Backend is the durable side of the log.
type Backend interface {
	Load(ctx context.Context) ([]model.PriceObservation, error)
	Append(ctx context.Context, obs model.PriceObservation) error
	Close() error
}

// Store serves queries from memory and writes through to a Backend. One
// writer at a time; readers get copies and never block on backend I/O.
type Store struct {
	backend Backend

	writeMu sync.Mutex
	mu      sync.RWMutex
	log     []model.PriceObservation
}

// Open loads the existing log from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	existing, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", ErrStorage, err)
	}
	return &Store{backend: backend, log: existing}, nil
}

// NewMemory returns a store with no durable backend.
func NewMemory() *Store {
	return &Store{backend: nopBackend{}}
}

func (s *Store) Append(ctx context.Context, obs model.PriceObservation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Append(ctx, obs); err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	s.mu.Lock()
	s.log = append(s.log, obs)
	s.mu.Unlock()
	return nil
}

// All returns a copy of the log in append order.
func (s *Store) All() []model.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PriceObservation, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func (s *Store) MostRecent() (model.PriceObservation, bool) {
	return s.MostRecentFor("")
}

// ForRoute returns a copy of the observations recorded for route, a
// SearchParameters.RouteKey. An empty route matches every observation.
func (s *Store) ForRoute(route string) []model.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PriceObservation, 0, len(s.log))
	for _, obs := range s.log {
		if onRoute(obs, route) {
			out = append(out, obs)
		}
	}
	return out
}

// MostRecentFor returns the last observation recorded for route.
func (s *Store) MostRecentFor(route string) (model.PriceObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if onRoute(s.log[i], route) {
			return s.log[i], true
		}
	}
	return model.PriceObservation{}, false
}

// Previous returns the observation appended before the most recent one.
func (s *Store) Previous() (model.PriceObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) < 2 {
		return model.PriceObservation{}, false
	}
	return s.log[len(s.log)-2], true
}

// MinimumToDate returns the observation with the lowest qualifying price
// across every route; ties go to the earliest timestamp. Observations without
// a price are skipped.
func (s *Store) MinimumToDate() (model.PriceObservation, bool) {
	return s.MinimumFor("")
}

// MinimumFor is MinimumToDate restricted to one route. Prices on different
// routes or in different currencies are never compared.
func (s *Store) MinimumFor(route string) (model.PriceObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := -1
	for i, obs := range s.log {
		if !obs.HasPrice() || !onRoute(obs, route) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		cur := s.log[best]
		switch c := obs.MinPrice.Cmp(*cur.MinPrice); {
		case c < 0:
			best = i
		case c == 0 && obs.ObservedAt.Before(cur.ObservedAt):
			best = i
		}
	}
	if best < 0 {
		return model.PriceObservation{}, false
	}
	return s.log[best], true
}

func onRoute(obs model.PriceObservation, route string) bool {
	return route == "" || strings.EqualFold(obs.Params.RouteKey(), route)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

type nopBackend struct{}

func (nopBackend) Load(context.Context) ([]model.PriceObservation, error) { return nil, nil }
func (nopBackend) Append(context.Context, model.PriceObservation) error   { return nil }
func (nopBackend) Close() error                                           { return nil }
