package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"credex/pkg/platform/sentinel"
)

// PostgresStore persists checkpoints in PostgreSQL, one row per event stream.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed checkpoint store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, eventName string) (uint64, error) {
	var block int64
	err := s.db.QueryRowContext(ctx,
		`SELECT block_number FROM block_checkpoints WHERE event_name = $1`, eventName,
	).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return uint64(block), nil
}

func (s *PostgresStore) Save(ctx context.Context, eventName string, blockNumber uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_checkpoints (event_name, block_number, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_name) DO UPDATE
		SET block_number = EXCLUDED.block_number, updated_at = EXCLUDED.updated_at
	`, eventName, int64(blockNumber), time.Now())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
