package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credex/internal/exchange/models"
	"credex/pkg/platform/sentinel"
)

// MemoryStoreSuite verifies the store-level concurrency contract: appends are
// atomic, terminal exchanges reject writes inside the same critical section,
// and handed-out records never alias internal state.
type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) seed(id string, states ...models.State) *models.Exchange {
	now := time.Now()
	exchange := &models.Exchange{
		ID:       id,
		TenantID: "tenant-1",
		Type:     models.TypeIssuing,
	}
	for _, state := range states {
		exchange.Events = append(exchange.Events, models.StateEvent{State: state, Timestamp: now})
	}
	stored, err := s.store.Insert(s.ctx, exchange)
	s.Require().NoError(err)
	return stored
}

func (s *MemoryStoreSuite) TestInsertAndFind() {
	s.seed("ex-1", models.StateNew)

	found, err := s.store.FindByID(s.ctx, "ex-1")
	s.Require().NoError(err)
	s.Equal("ex-1", found.ID)
	s.Equal(models.StateNew, found.CurrentState())

	_, err = s.store.FindByID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestInsertDuplicateConflicts() {
	s.seed("ex-1", models.StateNew)
	_, err := s.store.Insert(s.ctx, &models.Exchange{ID: "ex-1", TenantID: "t", Type: models.TypeIssuing})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestAppendStateWithPatch() {
	s.seed("ex-1", models.StateNew)

	challenge := "nonce-123"
	issued := time.Now()
	after, err := s.store.AppendState(s.ctx, "ex-1",
		models.StateEvent{State: models.StateIdentified, Timestamp: time.Now()},
		&models.Patch{Challenge: &challenge, ChallengeIssuedAt: &issued},
	)
	s.Require().NoError(err)
	s.Equal(models.StateIdentified, after.CurrentState())
	s.Equal("nonce-123", after.Challenge)
	s.Len(after.Events, 2)
}

func (s *MemoryStoreSuite) TestPatchLeavesHistoryUntouched() {
	s.seed("ex-1", models.StateNew)

	after, err := s.store.Patch(s.ctx, "ex-1", &models.Patch{FinalizedOfferIDs: []string{"o1"}})
	s.Require().NoError(err)
	s.Equal([]string{"o1"}, after.FinalizedOfferIDs)
	s.Len(after.Events, 1)
}

func (s *MemoryStoreSuite) TestPatchUnionsFinalizedOfferIDs() {
	s.seed("ex-1", models.StateNew)

	// Two writers each carry only their own finalization, as racing
	// finalizers working from the same stale read would.
	_, err := s.store.Patch(s.ctx, "ex-1", &models.Patch{FinalizedOfferIDs: []string{"o1"}})
	s.Require().NoError(err)
	after, err := s.store.Patch(s.ctx, "ex-1", &models.Patch{FinalizedOfferIDs: []string{"o2"}})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"o1", "o2"}, after.FinalizedOfferIDs)
}

func (s *MemoryStoreSuite) TestPatchRejectsTerminalExchange() {
	s.seed("ex-1", models.StateNew, models.StateNotIdentified)

	_, err := s.store.Patch(s.ctx, "ex-1", &models.Patch{FinalizedOfferIDs: []string{"o1"}})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestAppendStateNotFound() {
	_, err := s.store.AppendState(s.ctx, "missing",
		models.StateEvent{State: models.StateIdentified, Timestamp: time.Now()}, nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestTerminalExchangeRejectsAppend() {
	s.seed("ex-1", models.StateNew, models.StateIssuingPending, models.StateComplete)

	_, err := s.store.AppendState(s.ctx, "ex-1",
		models.StateEvent{State: models.StateUnexpectedError, Timestamp: time.Now()}, nil)
	s.ErrorIs(err, sentinel.ErrConflict)

	found, err := s.store.FindByID(s.ctx, "ex-1")
	s.Require().NoError(err)
	s.Len(found.Events, 3, "terminal history must not grow")
}

func (s *MemoryStoreSuite) TestConcurrentAppendsRetainAllEvents() {
	s.seed("ex-1", models.StateNew)

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.AppendState(context.Background(), "ex-1",
				models.StateEvent{State: models.StateIssuingPending, Timestamp: time.Now()}, nil)
			if err != nil && !errors.Is(err, sentinel.ErrConflict) {
				s.T().Errorf("unexpected append error: %v", err)
			}
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(s.ctx, "ex-1")
	s.Require().NoError(err)
	s.Len(found.Events, 1+writers, "no concurrent append may be lost")
}

func (s *MemoryStoreSuite) TestHandedOutRecordsDoNotAlias() {
	s.seed("ex-1", models.StateNew)
	first, err := s.store.FindByID(s.ctx, "ex-1")
	s.Require().NoError(err)
	first.Events[0].State = models.StateComplete

	second, err := s.store.FindByID(s.ctx, "ex-1")
	s.Require().NoError(err)
	s.Equal(models.StateNew, second.CurrentState())
}
