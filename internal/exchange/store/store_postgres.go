package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"credex/internal/exchange/models"
	"credex/pkg/platform/sentinel"
)

// PostgresStore persists exchanges in PostgreSQL. Event history and id lists
// are stored as jsonb so the append and the patch merge can run as one
// conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed exchange store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, exchange *models.Exchange) (*models.Exchange, error) {
	events, err := json.Marshal(exchange.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	query := `
		INSERT INTO exchanges (id, tenant_id, type, events, disclosure_id, offer_ids, offer_hashes, finalized_offer_ids, challenge, challenge_issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var storedID string
	err = s.db.QueryRowContext(ctx, query,
		exchange.ID,
		exchange.TenantID,
		string(exchange.Type),
		events,
		nullable(exchange.DisclosureID),
		marshalIDs(exchange.OfferIDs),
		marshalIDs(exchange.OfferHashes),
		marshalIDs(exchange.FinalizedOfferIDs),
		nullable(exchange.Challenge),
		exchange.ChallengeIssuedAt,
	).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert exchange: %w", err)
	}
	return exchange.Clone(), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Exchange, error) {
	query := `
		SELECT id, tenant_id, type, events, disclosure_id, offer_ids, offer_hashes, finalized_offer_ids, challenge, challenge_issued_at
		FROM exchanges
		WHERE id = $1
	`
	exchange, err := scanExchange(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find exchange: %w", err)
	}
	return exchange, nil
}

// AppendState runs the event append, the terminal guard, and the patch merge
// as a single conditional UPDATE so concurrent callers interleave safely.
func (s *PostgresStore) AppendState(ctx context.Context, id string, event models.StateEvent, patch *models.Patch) (*models.Exchange, error) {
	eventJSON, err := json.Marshal([]models.StateEvent{event})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	b := bindPatch(patch)

	query := `
		UPDATE exchanges
		SET events = events || $2::jsonb,
		    disclosure_id = COALESCE($3, disclosure_id),
		    offer_ids = COALESCE($4::jsonb, offer_ids),
		    offer_hashes = COALESCE($5::jsonb, offer_hashes),
		    finalized_offer_ids = ` + finalizedUnionExpr("$6") + `,
		    challenge = COALESCE($7, challenge),
		    challenge_issued_at = COALESCE($8, challenge_issued_at)
		WHERE id = $1
		  AND NOT (events->-1->>'state' = ANY($9))
		RETURNING id, tenant_id, type, events, disclosure_id, offer_ids, offer_hashes, finalized_offer_ids, challenge, challenge_issued_at
	`
	exchange, err := scanExchange(s.db.QueryRowContext(ctx, query,
		id, eventJSON, b.disclosureID, b.offerIDs, b.offerHashes, b.finalizedIDs, b.challenge, b.challengeIssuedAt, terminalStateArray(),
	))
	if err == nil {
		return exchange, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("append state: %w", err)
	}
	return nil, s.classifyNoRows(ctx, id, "append state")
}

// Patch merges field updates under the same terminal guard as AppendState but
// leaves the event history untouched.
func (s *PostgresStore) Patch(ctx context.Context, id string, patch *models.Patch) (*models.Exchange, error) {
	b := bindPatch(patch)

	query := `
		UPDATE exchanges
		SET disclosure_id = COALESCE($2, disclosure_id),
		    offer_ids = COALESCE($3::jsonb, offer_ids),
		    offer_hashes = COALESCE($4::jsonb, offer_hashes),
		    finalized_offer_ids = ` + finalizedUnionExpr("$5") + `,
		    challenge = COALESCE($6, challenge),
		    challenge_issued_at = COALESCE($7, challenge_issued_at)
		WHERE id = $1
		  AND NOT (events->-1->>'state' = ANY($8))
		RETURNING id, tenant_id, type, events, disclosure_id, offer_ids, offer_hashes, finalized_offer_ids, challenge, challenge_issued_at
	`
	exchange, err := scanExchange(s.db.QueryRowContext(ctx, query,
		id, b.disclosureID, b.offerIDs, b.offerHashes, b.finalizedIDs, b.challenge, b.challengeIssuedAt, terminalStateArray(),
	))
	if err == nil {
		return exchange, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patch exchange: %w", err)
	}
	return nil, s.classifyNoRows(ctx, id, "patch exchange")
}

// finalizedUnionExpr builds the SET expression that folds a finalized-id
// patch into the stored set inside the UPDATE itself. The union and dedupe
// happen in the database, so concurrent writers working from stale reads can
// only grow the set, never shrink it.
func finalizedUnionExpr(param string) string {
	return `CASE
		WHEN ` + param + `::jsonb IS NULL THEN finalized_offer_ids
		ELSE (
			SELECT COALESCE(jsonb_agg(DISTINCT value ORDER BY value), '[]'::jsonb)
			FROM jsonb_array_elements(COALESCE(finalized_offer_ids, '[]'::jsonb) || ` + param + `::jsonb)
		)
	END`
}

// classifyNoRows distinguishes a missing exchange from a terminal one after a
// conditional update matched nothing.
func (s *PostgresStore) classifyNoRows(ctx context.Context, id, op string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM exchanges WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	return sentinel.ErrNotFound
}

// patchBindings are the nullable parameters a *models.Patch contributes to a
// conditional UPDATE. Absent fields stay NULL so COALESCE keeps stored values.
type patchBindings struct {
	disclosureID      sql.NullString
	challenge         sql.NullString
	challengeIssuedAt sql.NullTime
	offerIDs          []byte
	offerHashes       []byte
	finalizedIDs      []byte
}

func bindPatch(patch *models.Patch) patchBindings {
	var b patchBindings
	if patch == nil {
		return b
	}
	if patch.DisclosureID != nil {
		b.disclosureID = sql.NullString{String: *patch.DisclosureID, Valid: true}
	}
	if patch.Challenge != nil {
		b.challenge = sql.NullString{String: *patch.Challenge, Valid: true}
	}
	if patch.ChallengeIssuedAt != nil {
		b.challengeIssuedAt = sql.NullTime{Time: *patch.ChallengeIssuedAt, Valid: true}
	}
	if patch.OfferIDs != nil {
		b.offerIDs = marshalIDs(patch.OfferIDs)
	}
	if patch.OfferHashes != nil {
		b.offerHashes = marshalIDs(patch.OfferHashes)
	}
	if patch.FinalizedOfferIDs != nil {
		b.finalizedIDs = marshalIDs(patch.FinalizedOfferIDs)
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExchange(row rowScanner) (*models.Exchange, error) {
	var (
		e                 models.Exchange
		typ               string
		events            []byte
		disclosureID      sql.NullString
		offerIDs          []byte
		offerHashes       []byte
		finalizedIDs      []byte
		challenge         sql.NullString
		challengeIssuedAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.TenantID, &typ, &events, &disclosureID, &offerIDs, &offerHashes, &finalizedIDs, &challenge, &challengeIssuedAt); err != nil {
		return nil, err
	}
	e.Type = models.Type(typ)
	if err := json.Unmarshal(events, &e.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	if err := unmarshalIDs(offerIDs, &e.OfferIDs); err != nil {
		return nil, err
	}
	if err := unmarshalIDs(offerHashes, &e.OfferHashes); err != nil {
		return nil, err
	}
	if err := unmarshalIDs(finalizedIDs, &e.FinalizedOfferIDs); err != nil {
		return nil, err
	}
	e.DisclosureID = disclosureID.String
	e.Challenge = challenge.String
	if challengeIssuedAt.Valid {
		ts := challengeIssuedAt.Time
		e.ChallengeIssuedAt = &ts
	}
	return &e, nil
}

func marshalIDs(ids []string) []byte {
	if ids == nil {
		ids = []string{}
	}
	out, _ := json.Marshal(ids)
	return out
}

func unmarshalIDs(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal id list: %w", err)
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func terminalStateArray() []string {
	return []string{
		string(models.StateComplete),
		string(models.StateUnexpectedError),
		string(models.StateNotIdentified),
	}
}

var _ Store = (*PostgresStore)(nil)
