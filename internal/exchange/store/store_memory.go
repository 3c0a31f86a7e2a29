package store

import (
	"context"
	"sync"

	"credex/internal/exchange/models"
	"credex/pkg/platform/sentinel"
)

// InMemoryStore keeps exchanges in a map guarded by a mutex. The mutex gives
// the same atomicity as the database's conditional update: the terminal guard,
// the event append, and the patch merge happen under one critical section.
type InMemoryStore struct {
	mu        sync.RWMutex
	exchanges map[string]*models.Exchange
}

// New constructs an empty in-memory exchange store.
func New() *InMemoryStore {
	return &InMemoryStore{exchanges: make(map[string]*models.Exchange)}
}

func (s *InMemoryStore) Insert(_ context.Context, exchange *models.Exchange) (*models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.exchanges[exchange.ID]; exists {
		return nil, sentinel.ErrConflict
	}
	s.exchanges[exchange.ID] = exchange.Clone()
	return exchange.Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exchange, ok := s.exchanges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return exchange.Clone(), nil
}

func (s *InMemoryStore) AppendState(_ context.Context, id string, event models.StateEvent, patch *models.Patch) (*models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exchange, ok := s.exchanges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if exchange.Terminal() {
		return nil, sentinel.ErrConflict
	}
	exchange.Events = append(exchange.Events, event)
	patch.Apply(exchange)
	return exchange.Clone(), nil
}

func (s *InMemoryStore) Patch(_ context.Context, id string, patch *models.Patch) (*models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exchange, ok := s.exchanges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if exchange.Terminal() {
		return nil, sentinel.ErrConflict
	}
	patch.Apply(exchange)
	return exchange.Clone(), nil
}

var _ Store = (*InMemoryStore)(nil)
