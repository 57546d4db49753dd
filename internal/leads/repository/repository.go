package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no lead matches the lookup.
var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, identity_key, email_enc, phone_enc, first_name, last_name,
	attributes, source, session_key, last_activity_at, abandoned, active, created_at, updated_at`

// Upsert merge-writes a lead by identity key. A repeat sighting refreshes
// activity, merges attributes, and fills in fields the stored row is missing;
// it never blanks an existing value with an empty incoming one.
func (r *Repository) Upsert(ctx context.Context, params UpsertLeadParams) (Lead, error) {
	attrs, err := json.Marshal(nonNilAttributes(params.Attributes))
	if err != nil {
		return Lead{}, fmt.Errorf("marshal attributes: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (identity_key, email_enc, phone_enc, first_name, last_name, attributes, source, session_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity_key) DO UPDATE SET
			email_enc = COALESCE(NULLIF(EXCLUDED.email_enc, ''), leads.email_enc),
			phone_enc = COALESCE(NULLIF(EXCLUDED.phone_enc, ''), leads.phone_enc),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), leads.first_name),
			last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), leads.last_name),
			attributes = leads.attributes || EXCLUDED.attributes,
			source = COALESCE(NULLIF(EXCLUDED.source, ''), leads.source),
			session_key = COALESCE(NULLIF(EXCLUDED.session_key, ''), leads.session_key),
			last_activity_at = now(),
			abandoned = FALSE,
			active = TRUE,
			updated_at = now()
		RETURNING `+leadColumns,
		params.IdentityKey, params.EmailEnc, params.PhoneEnc, params.FirstName,
		params.LastName, attrs, params.Source, params.SessionKey,
	)

	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) GetByIdentityKey(ctx context.Context, identityKey string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE identity_key = $1`, identityKey)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) List(ctx context.Context, params ListLeadsParams) ([]Lead, error) {
	limit := params.Limit
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE active
		  AND ($1 = '' OR source = $1)
		  AND (NOT $2::boolean OR abandoned)
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4
	`, params.Source, params.OnlyAbandoned, params.Offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// Deactivate soft-deletes a lead. Rows are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAbandonedBefore flags active visitors whose last sighting predates the
// cutoff. Returns the number of rows flagged.
func (r *Repository) MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET abandoned = TRUE, updated_at = now()
		WHERE active AND NOT abandoned AND last_activity_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) RecordReply(ctx context.Context, leadID uuid.UUID, body string) (Reply, error) {
	var reply Reply
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_replies (lead_id, body)
		VALUES ($1, $2)
		RETURNING id, lead_id, body, received_at
	`, leadID, body).Scan(&reply.ID, &reply.LeadID, &reply.Body, &reply.ReceivedAt)
	if err != nil {
		return Reply{}, err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE leads SET last_activity_at = now(), updated_at = now() WHERE id = $1`, leadID)
	return reply, err
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	var attrs []byte
	err := row.Scan(
		&lead.ID, &lead.IdentityKey, &lead.EmailEnc, &lead.PhoneEnc,
		&lead.FirstName, &lead.LastName, &attrs, &lead.Source, &lead.SessionKey,
		&lead.LastActivityAt, &lead.Abandoned, &lead.Active,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &lead.Attributes); err != nil {
			return Lead{}, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}

	return lead, nil
}

func nonNilAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}
