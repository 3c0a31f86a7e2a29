package cursor

import (
	"context"
	"sync"

	"credex/pkg/platform/sentinel"
)

// InMemoryStore keeps checkpoints in a map for tests and single-node runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]uint64
}

// NewInMemoryStore constructs an empty checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]uint64)}
}

func (s *InMemoryStore) Load(_ context.Context, eventName string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.checkpoints[eventName]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return block, nil
}

func (s *InMemoryStore) Save(_ context.Context, eventName string, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[eventName] = blockNumber
	return nil
}

var _ Store = (*InMemoryStore)(nil)
