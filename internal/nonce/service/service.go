package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credex/internal/nonce/models"
	"credex/internal/nonce/store"
	dErrors "credex/pkg/domain-errors"
	"credex/pkg/platform/sentinel"
	"credex/pkg/platform/tracer"
)

// Store defines the persistence dependency for nonce allocation.
// See store.Store for the error and concurrency contracts.
type Store = store.Store

// Option configures the Service.
type Option func(*Service)

// Service allocates per-address transaction sequence numbers. The store's
// atomic increment is the sole source of truth; this layer only normalizes
// input, classifies errors, and handles the opportunistic tenant backfill.
type Service struct {
	store  Store
	logger *slog.Logger
	tracer tracer.Tracer
}

// NewService creates a nonce service.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{store: store, tracer: tracer.NewNoop()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer instance for the service.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// Increment allocates the next nonce for the address and returns the value
// that was current before this call: the caller uses it for the transaction
// it is about to submit, while the store already reflects the next value to
// hand out.
//
// When the row lacks a tenant tag and tenantID is supplied, the tag is
// back-filled in a separate best-effort write after the allocation; that write
// never blocks or fails the primary path.
func (s *Service) Increment(ctx context.Context, address, tenantID string) (int64, error) {
	normalized, err := models.NormalizeAddress(address)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid signing address")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanNonceIncrement,
		tracer.String(tracer.AttrAddress, normalized))
	var spanErr error
	defer func() { span.End(spanErr) }()

	previous, err := s.store.IncrementAndGetPrevious(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			spanErr = dErrors.New(dErrors.CodeInternal, "NONCE_NOT_FOUND: no counter row for address; provision it before first use")
			return 0, spanErr
		}
		spanErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate nonce")
		return 0, spanErr
	}

	if tenantID != "" && previous.TenantID == "" {
		s.backfillTenant(normalized, tenantID)
	}

	return previous.Nonce, nil
}

// Provision creates the counter row for an address starting at the given
// value. Creating twice is a conflict, not an overwrite.
func (s *Service) Provision(ctx context.Context, address, tenantID string, startAt int64) error {
	normalized, err := models.NormalizeAddress(address)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid signing address")
	}
	if startAt < 0 {
		return dErrors.New(dErrors.CodeValidation, "nonce must start at zero or above")
	}
	record := &models.Record{
		Address:   normalized,
		Nonce:     startAt,
		TenantID:  tenantID,
		UpdatedAt: time.Now(),
	}
	if err := s.store.Provision(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "nonce counter already provisioned")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision nonce counter")
	}
	return nil
}

// Current returns the counter row without allocating. Diagnostic use only;
// never use the returned value for a transaction.
func (s *Service) Current(ctx context.Context, address string) (*models.Record, error) {
	normalized, err := models.NormalizeAddress(address)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid signing address")
	}
	record, err := s.store.Find(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no counter row for address")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read nonce counter")
	}
	return record, nil
}

// backfillTenant runs detached from the request so a slow or failed tag write
// can never delay or fail an allocation that already happened.
func (s *Service) backfillTenant(address, tenantID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.store.BackfillTenant(ctx, address, tenantID); err != nil && s.logger != nil {
			s.logger.Warn("nonce tenant backfill failed",
				"address", address,
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}()
}
