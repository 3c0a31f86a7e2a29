package store

import (
	"context"
	"sync"
	"time"

	exchangemodels "credex/internal/exchange/models"
	"credex/internal/offer/models"
	"credex/pkg/platform/sentinel"
)

// InMemoryStore keeps offers in a map guarded by a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	offers map[string]*models.Offer
}

// New constructs an empty in-memory offer store.
func New() *InMemoryStore {
	return &InMemoryStore{offers: make(map[string]*models.Offer)}
}

func (s *InMemoryStore) Save(_ context.Context, offer *models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := exchangemodels.NormalizeID(offer.ID)
	if _, exists := s.offers[key]; exists {
		return sentinel.ErrConflict
	}
	s.offers[key] = offer.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[exchangemodels.NormalizeID(id)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return offer.Clone(), nil
}

func (s *InMemoryStore) ListUnexpiredByIDs(_ context.Context, ids []string, now time.Time) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Offer
	for _, id := range ids {
		offer, ok := s.offers[exchangemodels.NormalizeID(id)]
		if !ok || offer.Expired(now) {
			continue
		}
		out = append(out, offer.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) Consent(_ context.Context, id string, at time.Time) (*models.Offer, error) {
	return s.dispose(id, at, func(o *models.Offer) { o.ConsentedAt = &at })
}

func (s *InMemoryStore) Reject(_ context.Context, id string, at time.Time) (*models.Offer, error) {
	return s.dispose(id, at, func(o *models.Offer) { o.RejectedAt = &at })
}

func (s *InMemoryStore) dispose(id string, at time.Time, mark func(*models.Offer)) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[exchangemodels.NormalizeID(id)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if offer.Finalized() {
		return nil, sentinel.ErrConflict
	}
	if offer.Expired(at) {
		return nil, sentinel.ErrExpired
	}
	mark(offer)
	return offer.Clone(), nil
}

func (s *InMemoryStore) SetCredentialStatus(_ context.Context, id string, status models.CredentialStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[exchangemodels.NormalizeID(id)]
	if !ok {
		return sentinel.ErrNotFound
	}
	offer.CredentialStatus = status
	return nil
}

var _ Store = (*InMemoryStore)(nil)
