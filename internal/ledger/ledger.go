// Package ledger wraps transaction submission to the blockchain collaborator.
// The engine never constructs raw transactions; it only allocates the nonce a
// transaction will carry and hands the signed payload to the RPC client.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	noncesvc "credex/internal/nonce/service"
	dErrors "credex/pkg/domain-errors"
	"credex/pkg/platform/tracer"
)

// Receipt is the ledger's acknowledgement of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// Client is the ledger RPC collaborator.
type Client interface {
	Submit(ctx context.Context, signedTx []byte) (*Receipt, error)
}

// NonceAllocator hands out the next sequence number for a signing address.
type NonceAllocator interface {
	Increment(ctx context.Context, address, tenantID string) (int64, error)
}

var _ NonceAllocator = (*noncesvc.Service)(nil)

// Option configures the Submitter.
type Option func(*Submitter)

// Submitter allocates a nonce and submits a signed transaction under a
// timeout. The nonce is durably allocated before the RPC attempt; a failed
// submission is an accepted cost handled by higher-level resubmit logic, never
// by rolling the counter back.
type Submitter struct {
	client  Client
	nonces  NonceAllocator
	timeout time.Duration
	logger  *slog.Logger
	tracer  tracer.Tracer
}

// NewSubmitter creates a submitter with the given RPC timeout.
func NewSubmitter(client Client, nonces NonceAllocator, timeout time.Duration, opts ...Option) *Submitter {
	s := &Submitter{
		client:  client,
		nonces:  nonces,
		timeout: timeout,
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger sets the logger instance for the submitter.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Submitter) {
		s.logger = logger
	}
}

// WithTracer sets the tracer instance for the submitter.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Submitter) {
		s.tracer = t
	}
}

// SignFunc renders the signed transaction bytes for a given nonce. Signing
// lives with the caller; the submitter only sequences and submits.
type SignFunc func(nonce int64) ([]byte, error)

// Submit allocates the next nonce for the address, signs via the callback,
// and submits under the configured timeout. RPC failures and timeouts come
// back as retryable upstream/timeout errors.
func (s *Submitter) Submit(ctx context.Context, address, tenantID string, sign SignFunc) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerSubmit,
		tracer.String(tracer.AttrAddress, address))
	var spanErr error
	defer func() { span.End(spanErr) }()

	nonce, err := s.nonces.Increment(ctx, address, tenantID)
	if err != nil {
		spanErr = err
		return nil, err
	}

	signedTx, err := sign(nonce)
	if err != nil {
		spanErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign transaction")
		return nil, spanErr
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	receipt, err := s.client.Submit(submitCtx, signedTx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("ledger submission failed",
				"address", address,
				"nonce", nonce,
				"error", err,
			)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			spanErr = dErrors.Wrap(err, dErrors.CodeTimeout, "ledger submission timed out")
		} else {
			spanErr = dErrors.Wrap(err, dErrors.CodeUpstream, "ledger submission failed")
		}
		return nil, spanErr
	}
	return receipt, nil
}
