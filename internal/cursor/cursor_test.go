package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

// scriptedStream serves pre-defined batches keyed by fromBlock.
type scriptedStream struct {
	mu      sync.Mutex
	batches map[uint64]Batch
	pulls   []uint64
	err     error
}

func (s *scriptedStream) PullEvents(_ context.Context, _ string, fromBlock uint64) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls = append(s.pulls, fromBlock)
	if s.err != nil {
		return Batch{}, s.err
	}
	batch, ok := s.batches[fromBlock]
	if !ok {
		return Batch{LatestBlock: fromBlock}, nil
	}
	return batch, nil
}

// CursorSuite verifies the checkpoint-after-confirm contract: a handler
// failure leaves the checkpoint untouched so the batch is redelivered, and a
// fresh stream starts from genesis.
type CursorSuite struct {
	suite.Suite
	store  *InMemoryStore
	stream *scriptedStream
	ctx    context.Context
}

func (s *CursorSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.stream = &scriptedStream{batches: make(map[uint64]Batch)}
	s.ctx = context.Background()
}

func TestCursorSuite(t *testing.T) {
	suite.Run(t, new(CursorSuite))
}

func batchFor(from, latest uint64, count int) Batch {
	batch := Batch{LatestBlock: latest}
	for i := 0; i < count; i++ {
		batch.Events = append(batch.Events, Event{
			Name:        "TokenMinted",
			BlockNumber: from + uint64(i),
		})
	}
	return batch
}

func (s *CursorSuite) TestFreshStreamStartsFromGenesis() {
	s.stream.batches[50] = batchFor(50, 80, 3)

	var handled []Event
	runner := NewRunner(s.stream, s.store, func(_ context.Context, events []Event) error {
		handled = append(handled, events...)
		return nil
	}, []string{"TokenMinted"}, WithGenesisBlock(50))

	s.Require().NoError(runner.ProcessOnce(s.ctx, "TokenMinted"))
	s.Len(handled, 3)
	s.Equal([]uint64{50}, s.stream.pulls)

	block, err := s.store.Load(s.ctx, "TokenMinted")
	s.Require().NoError(err)
	s.Equal(uint64(80), block)
}

func (s *CursorSuite) TestHandlerFailureDoesNotAdvanceCheckpoint() {
	s.Require().NoError(s.store.Save(s.ctx, "TokenMinted", 100))
	s.stream.batches[100] = batchFor(100, 150, 5)

	deliveries := 0
	runner := NewRunner(s.stream, s.store, func(_ context.Context, _ []Event) error {
		deliveries++
		if deliveries == 1 {
			return errors.New("downstream crashed")
		}
		return nil
	}, []string{"TokenMinted"})

	s.Require().Error(runner.ProcessOnce(s.ctx, "TokenMinted"))
	block, err := s.store.Load(s.ctx, "TokenMinted")
	s.Require().NoError(err)
	s.Equal(uint64(100), block, "checkpoint must not move past an unconfirmed batch")

	// restart: the same batch is pulled again from the last confirmed block
	s.Require().NoError(runner.ProcessOnce(s.ctx, "TokenMinted"))
	s.Equal([]uint64{100, 100}, s.stream.pulls)
	s.Equal(2, deliveries)

	block, err = s.store.Load(s.ctx, "TokenMinted")
	s.Require().NoError(err)
	s.Equal(uint64(150), block)
}

func (s *CursorSuite) TestEmptyBatchIsANoOp() {
	s.Require().NoError(s.store.Save(s.ctx, "TokenMinted", 200))

	runner := NewRunner(s.stream, s.store, func(_ context.Context, _ []Event) error {
		s.Fail("handler must not run for an empty batch")
		return nil
	}, []string{"TokenMinted"})

	s.Require().NoError(runner.ProcessOnce(s.ctx, "TokenMinted"))
	block, err := s.store.Load(s.ctx, "TokenMinted")
	s.Require().NoError(err)
	s.Equal(uint64(200), block)
}

func (s *CursorSuite) TestStreamErrorPropagates() {
	s.stream.err = errors.New("rpc unavailable")
	runner := NewRunner(s.stream, s.store, func(_ context.Context, _ []Event) error { return nil },
		[]string{"TokenMinted"})
	s.Error(runner.ProcessOnce(s.ctx, "TokenMinted"))
}
