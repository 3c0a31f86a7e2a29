package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	exchangemodels "credex/internal/exchange/models"
	"credex/internal/offer/models"
	"credex/pkg/platform/sentinel"
)

// PostgresStore persists offers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed offer store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const offerColumns = `id, exchange_id, credential_types, claims, consented_at, rejected_at, credential_status_id, credential_status_type, created_at, expires_at`

func (s *PostgresStore) Save(ctx context.Context, offer *models.Offer) error {
	types, err := json.Marshal(offer.CredentialTypes)
	if err != nil {
		return fmt.Errorf("marshal credential types: %w", err)
	}
	claims, err := json.Marshal(offer.Claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES (lower($1), lower($2), $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var storedID string
	err = s.db.QueryRowContext(ctx, query,
		offer.ID,
		offer.ExchangeID,
		types,
		claims,
		offer.ConsentedAt,
		offer.RejectedAt,
		nullString(offer.CredentialStatus.ID),
		nullString(offer.CredentialStatus.Type),
		offer.CreatedAt,
		offer.ExpiresAt,
	).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save offer: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = lower($1)`
	offer, err := scanOffer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find offer: %w", err)
	}
	return offer, nil
}

func (s *PostgresStore) ListUnexpiredByIDs(ctx context.Context, ids []string, now time.Time) ([]*models.Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE id = ANY($1)
		  AND (expires_at IS NULL OR expires_at >= $2)
	`
	lowered := make([]string, len(ids))
	for i, id := range ids {
		lowered[i] = exchangemodels.NormalizeID(id)
	}
	rows, err := s.db.QueryContext(ctx, query, lowered, now)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return offers, nil
}

// Consent marks the offer accepted. The disposition guard runs inside the
// UPDATE's WHERE clause, so a concurrent reject cannot produce both terminal
// timestamps.
func (s *PostgresStore) Consent(ctx context.Context, id string, at time.Time) (*models.Offer, error) {
	return s.dispose(ctx, id, at, "consented_at")
}

// Reject marks the offer rejected, under the same atomic guard as Consent.
func (s *PostgresStore) Reject(ctx context.Context, id string, at time.Time) (*models.Offer, error) {
	return s.dispose(ctx, id, at, "rejected_at")
}

func (s *PostgresStore) dispose(ctx context.Context, id string, at time.Time, column string) (*models.Offer, error) {
	// column comes from the two fixed call sites above, never from input
	query := `
		UPDATE offers
		SET ` + column + ` = $2
		WHERE id = lower($1)
		  AND consented_at IS NULL
		  AND rejected_at IS NULL
		  AND (expires_at IS NULL OR expires_at >= $2)
		RETURNING ` + offerColumns
	offer, err := scanOffer(s.db.QueryRowContext(ctx, query, id, at))
	if err == nil {
		return offer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dispose offer: %w", err)
	}

	existing, findErr := s.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	if existing.Finalized() {
		return nil, sentinel.ErrConflict
	}
	return nil, sentinel.ErrExpired
}

func (s *PostgresStore) SetCredentialStatus(ctx context.Context, id string, status models.CredentialStatus) error {
	query := `
		UPDATE offers
		SET credential_status_id = $2, credential_status_type = $3
		WHERE id = lower($1)
	`
	res, err := s.db.ExecContext(ctx, query, id, nullString(status.ID), nullString(status.Type))
	if err != nil {
		return fmt.Errorf("set credential status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set credential status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var (
		o           models.Offer
		types       []byte
		claims      []byte
		consentedAt sql.NullTime
		rejectedAt  sql.NullTime
		statusID    sql.NullString
		statusType  sql.NullString
		expiresAt   sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.ExchangeID, &types, &claims, &consentedAt, &rejectedAt, &statusID, &statusType, &o.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(types, &o.CredentialTypes); err != nil {
		return nil, fmt.Errorf("unmarshal credential types: %w", err)
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &o.Claims); err != nil {
			return nil, fmt.Errorf("unmarshal claims: %w", err)
		}
	}
	if consentedAt.Valid {
		ts := consentedAt.Time
		o.ConsentedAt = &ts
	}
	if rejectedAt.Valid {
		ts := rejectedAt.Time
		o.RejectedAt = &ts
	}
	o.CredentialStatus = models.CredentialStatus{ID: statusID.String, Type: statusType.String}
	if expiresAt.Valid {
		ts := expiresAt.Time
		o.ExpiresAt = &ts
	}
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
