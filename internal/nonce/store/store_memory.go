package store

import (
	"context"
	"sync"
	"time"

	"credex/internal/nonce/models"
	"credex/pkg/platform/sentinel"
)

// InMemoryStore keeps counter rows in a map. The mutex makes the
// increment-and-return-previous a single critical section, matching the
// atomic find-and-update the Postgres store gets from a conditional UPDATE.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
}

// New constructs an empty in-memory nonce store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Record)}
}

func (s *InMemoryStore) Provision(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Address]; exists {
		return sentinel.ErrConflict
	}
	stored := *record
	s.records[record.Address] = &stored
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, address string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *InMemoryStore) IncrementAndGetPrevious(_ context.Context, address string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	previous := *record
	record.Nonce++
	record.UpdatedAt = time.Now()
	return &previous, nil
}

func (s *InMemoryStore) BackfillTenant(_ context.Context, address, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[address]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.TenantID == "" {
		record.TenantID = tenantID
	}
	return nil
}

var _ Store = (*InMemoryStore)(nil)
