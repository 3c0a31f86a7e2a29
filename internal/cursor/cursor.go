// Package cursor tracks the last processed block per ledger event stream, so
// mint/burn/issuance events are replayed exactly once from a durable
// checkpoint.
//
// The checkpoint is advanced only after the handler confirms a batch. A crash
// between handling and checkpointing re-delivers the batch on restart;
// handlers must therefore be idempotent, which is cheap here because the
// events are re-logged or re-mapped, never re-spent.
package cursor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"credex/pkg/platform/sentinel"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credex_cursor_events_processed_total",
		Help: "Ledger events handed to the batch handler, labeled by stream",
	}, []string{"stream"})
	checkpointBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "credex_cursor_checkpoint_block",
		Help: "Last confirmed block number per stream",
	}, []string{"stream"})
	pollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credex_cursor_poll_failures_total",
		Help: "Failed poll iterations, labeled by stream",
	}, []string{"stream"})
)

// Event is one ledger event pulled from a stream.
type Event struct {
	Name        string
	BlockNumber uint64
	TxHash      string
	Payload     []byte
}

// Batch is the result of one PullEvents call: a finite page of events plus
// the latest block the page covers.
type Batch struct {
	Events      []Event
	LatestBlock uint64
}

// Stream is the event source collaborator, typically a ledger RPC log filter.
type Stream interface {
	PullEvents(ctx context.Context, eventName string, fromBlock uint64) (Batch, error)
}

// Store persists checkpoints.
//
// Error Contract: Load returns sentinel.ErrNotFound for a stream that has
// never checkpointed; the runner then starts from its configured genesis.
type Store interface {
	Load(ctx context.Context, eventName string) (uint64, error)
	Save(ctx context.Context, eventName string, blockNumber uint64) error
}

// Handler consumes a confirmed batch. It must be idempotent under redelivery.
type Handler func(ctx context.Context, events []Event) error

// Option configures the Runner.
type Option func(*Runner)

// Runner polls one or more event streams on an interval, advancing each
// stream's checkpoint only after its handler returns success.
type Runner struct {
	stream      Stream
	store       Store
	handler     Handler
	streams     []string
	interval    time.Duration
	fromGenesis uint64
	logger      *slog.Logger
}

// NewRunner creates a cursor runner over the named event streams.
func NewRunner(stream Stream, store Store, handler Handler, streams []string, opts ...Option) *Runner {
	r := &Runner{
		stream:   stream,
		store:    store,
		handler:  handler,
		streams:  streams,
		interval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithGenesisBlock sets the block streams start from when no checkpoint
// exists yet.
func WithGenesisBlock(block uint64) Option {
	return func(r *Runner) {
		r.fromGenesis = block
	}
}

// WithLogger sets the logger instance for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Run polls all streams until the context is cancelled. Each stream runs in
// its own goroutine; a persistent store failure on one stream cancels the
// group so the process can restart cleanly.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range r.streams {
		g.Go(func() error {
			return r.pollLoop(ctx, name)
		})
	}
	return g.Wait()
}

func (r *Runner) pollLoop(ctx context.Context, eventName string) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.ProcessOnce(ctx, eventName); err != nil {
			pollFailures.WithLabelValues(eventName).Inc()
			if r.logger != nil {
				r.logger.Warn("cursor poll failed", "stream", eventName, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce performs one pull-handle-checkpoint cycle for a stream.
// Exported so tests and catch-up jobs can drive the cursor without the loop.
func (r *Runner) ProcessOnce(ctx context.Context, eventName string) error {
	fromBlock, err := r.store.Load(ctx, eventName)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		fromBlock = r.fromGenesis
	}

	batch, err := r.stream.PullEvents(ctx, eventName, fromBlock)
	if err != nil {
		return err
	}
	if len(batch.Events) == 0 && batch.LatestBlock <= fromBlock {
		return nil
	}

	if err := r.handler(ctx, batch.Events); err != nil {
		// no checkpoint write: the batch is redelivered next cycle
		return err
	}

	if err := r.store.Save(ctx, eventName, batch.LatestBlock); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(eventName).Add(float64(len(batch.Events)))
	checkpointBlock.WithLabelValues(eventName).Set(float64(batch.LatestBlock))
	return nil
}
