package store

import (
	"context"
	"time"

	"credex/internal/offer/models"
)

// Store is the persistence interface for credential offers.
//
// Error Contract:
//   - FindByID returns sentinel.ErrNotFound when no offer matches.
//   - Consent and Reject return sentinel.ErrConflict when the offer already
//     has a terminal disposition, and sentinel.ErrExpired when it is past its
//     expiry; both are checked atomically with the write.
type Store interface {
	// Save persists a new offer.
	Save(ctx context.Context, offer *models.Offer) error

	// FindByID loads an offer by id.
	FindByID(ctx context.Context, id string) (*models.Offer, error)

	// ListUnexpiredByIDs returns the subset of the given offer ids that still
	// exist as unexpired records at the given instant. Finalized offers are
	// included; the caller decides what disposition means.
	ListUnexpiredByIDs(ctx context.Context, ids []string, now time.Time) ([]*models.Offer, error)

	// Consent marks the offer accepted at the given instant.
	Consent(ctx context.Context, id string, at time.Time) (*models.Offer, error)

	// Reject marks the offer rejected at the given instant.
	Reject(ctx context.Context, id string, at time.Time) (*models.Offer, error)

	// SetCredentialStatus records the revocation pointer assigned at issuance.
	SetCredentialStatus(ctx context.Context, id string, status models.CredentialStatus) error
}
