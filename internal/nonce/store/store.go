package store

import (
	"context"

	"credex/internal/nonce/models"
)

// Store is the persistence interface for nonce counter rows.
//
// Error Contract:
//   - IncrementAndGetPrevious and Find return sentinel.ErrNotFound when no row
//     exists for the address. Missing rows are never implicitly created: two
//     racing callers both observing "no row" would otherwise initialize to the
//     same value.
//   - Provision returns sentinel.ErrConflict when the row already exists.
//
// Concurrency Contract:
//   - IncrementAndGetPrevious must be one atomic find-and-update that returns
//     the pre-increment record. A read-then-write implementation is forbidden;
//     it would let two concurrent callers receive the same nonce.
type Store interface {
	// Provision creates the counter row for an address.
	Provision(ctx context.Context, record *models.Record) error

	// Find loads the counter row without modifying it.
	Find(ctx context.Context, address string) (*models.Record, error)

	// IncrementAndGetPrevious atomically bumps the counter and returns the
	// record as it was before the increment.
	IncrementAndGetPrevious(ctx context.Context, address string) (*models.Record, error)

	// BackfillTenant tags an untagged row with an owner. Best-effort; rows
	// that already carry a tenant are left untouched.
	BackfillTenant(ctx context.Context, address, tenantID string) error
}
