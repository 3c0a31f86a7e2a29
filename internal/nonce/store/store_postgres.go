package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"credex/internal/nonce/models"
	"credex/pkg/platform/sentinel"
)

// PostgresStore persists nonce counters in PostgreSQL. The increment is a
// single UPDATE ... RETURNING, so allocation is linearizable per address.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed nonce store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Provision(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO nonces (address, nonce, tenant_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING
		RETURNING address
	`
	var stored string
	err := s.db.QueryRowContext(ctx, query,
		record.Address,
		record.Nonce,
		sql.NullString{String: record.TenantID, Valid: record.TenantID != ""},
		record.UpdatedAt,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("provision nonce: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, address string) (*models.Record, error) {
	query := `SELECT address, nonce, tenant_id, updated_at FROM nonces WHERE address = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find nonce: %w", err)
	}
	return record, nil
}

// IncrementAndGetPrevious bumps the counter and returns the pre-increment row
// in one round trip. `nonce - 1` in the RETURNING clause reads the updated
// column, which reflects the post-increment value.
func (s *PostgresStore) IncrementAndGetPrevious(ctx context.Context, address string) (*models.Record, error) {
	query := `
		UPDATE nonces
		SET nonce = nonce + 1, updated_at = $2
		WHERE address = $1
		RETURNING address, nonce - 1, tenant_id, updated_at
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, address, time.Now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("increment nonce: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) BackfillTenant(ctx context.Context, address, tenantID string) error {
	query := `
		UPDATE nonces
		SET tenant_id = $2
		WHERE address = $1 AND tenant_id IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, address, tenantID); err != nil {
		return fmt.Errorf("backfill nonce tenant: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		r        models.Record
		tenantID sql.NullString
	)
	if err := row.Scan(&r.Address, &r.Nonce, &tenantID, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.TenantID = tenantID.String
	return &r, nil
}

var _ Store = (*PostgresStore)(nil)
