package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"credex/internal/offer/models"
	"credex/internal/offer/store"
	dErrors "credex/pkg/domain-errors"
	"credex/pkg/platform/sentinel"
)

const defaultOfferTTL = 7 * 24 * time.Hour

type Option func(*Service)

// Service manages credential offer dispositions. Consent and rejection are
// terminal and mutually exclusive; the store enforces both atomically with
// the write so racing dispositions cannot double-settle an offer.
type Service struct {
	store    store.Store
	logger   *slog.Logger
	offerTTL time.Duration
	now      func() time.Time
	newID    func() string
}

func NewService(store store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		logger:   logger,
		offerTTL: defaultOfferTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithOfferTTL configures how long a new offer stays claimable.
func WithOfferTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.offerTTL = ttl
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Create mints an offer tied to an exchange, claimable until the TTL lapses.
func (s *Service) Create(ctx context.Context, exchangeID string, credentialTypes []string, claims map[string]any) (*models.Offer, error) {
	if exchangeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "exchange id is required")
	}
	if len(credentialTypes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "credential types are required")
	}

	now := s.now().UTC()
	expires := now.Add(s.offerTTL)
	offer := &models.Offer{
		ID:              s.newID(),
		ExchangeID:      exchangeID,
		CredentialTypes: credentialTypes,
		Claims:          claims,
		CreatedAt:       now,
		ExpiresAt:       &expires,
	}
	if err := s.store.Save(ctx, offer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create offer")
	}

	s.logger.Info("offer created",
		"offer_id", offer.ID,
		"exchange_id", exchangeID,
		"expires_at", expires,
	)
	return offer, nil
}

// Get loads an offer by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	return offer, nil
}

// Claim records the holder's consent. Claiming a settled offer is a conflict;
// claiming past the expiry window fails the same way since the offer can no
// longer change disposition.
func (s *Service) Claim(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.store.Consent(ctx, id, s.now().UTC())
	if err != nil {
		return nil, s.translate(err)
	}
	s.logger.Info("offer claimed", "offer_id", offer.ID, "exchange_id", offer.ExchangeID)
	return offer, nil
}

// Reject records the holder's refusal. Terminal like Claim.
func (s *Service) Reject(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.store.Reject(ctx, id, s.now().UTC())
	if err != nil {
		return nil, s.translate(err)
	}
	s.logger.Info("offer rejected", "offer_id", offer.ID, "exchange_id", offer.ExchangeID)
	return offer, nil
}

// SetCredentialStatus records the revocation pointer assigned when the
// credential behind the offer is issued.
func (s *Service) SetCredentialStatus(ctx context.Context, id string, status models.CredentialStatus) error {
	if err := s.store.SetCredentialStatus(ctx, id, status); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "offer not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "offer already settled")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeConflict, "offer expired")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
