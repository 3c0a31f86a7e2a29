package store

import (
	"context"

	"credex/internal/exchange/models"
)

// Store is the persistence interface for exchanges.
//
// Error Contract:
//   - FindByID and AppendState return sentinel.ErrNotFound when no exchange
//     matches the id.
//   - AppendState returns sentinel.ErrConflict when the exchange has already
//     reached a terminal state; the guard is evaluated inside the same atomic
//     operation as the append, so two concurrent appends interleave safely and
//     no update is lost.
//   - All other failures are wrapped infrastructure errors.
type Store interface {
	// Insert persists a new exchange and returns the stored entity.
	Insert(ctx context.Context, exchange *models.Exchange) (*models.Exchange, error)

	// FindByID loads an exchange by id.
	FindByID(ctx context.Context, id string) (*models.Exchange, error)

	// AppendState atomically pushes a lifecycle event onto the exchange's
	// event list and, when patch is non-nil, merges the patch into top-level
	// fields in the same operation. Returns the post-update document.
	AppendState(ctx context.Context, id string, event models.StateEvent, patch *models.Patch) (*models.Exchange, error)

	// Patch merges top-level field updates without touching the event history.
	// Like AppendState it refuses to modify a terminal exchange.
	Patch(ctx context.Context, id string, patch *models.Patch) (*models.Exchange, error)
}
