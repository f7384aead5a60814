// Package repository is the pgx-backed persistence layer for leads and
// everything hanging off them. Queries return domain snapshots directly.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nurture_backend/internal/leads/domain"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, first_name, last_name, phone, email, region, stage,
	consent_sms, consent_email, consent_call, autonomous, automation_disabled,
	attributes, last_contacted_at, next_review_at, application_started_at,
	application_completed_at, locked_until, created_at, updated_at`

type leadScanner interface {
	Scan(dest ...any) error
}

func scanLead(row leadScanner) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Phone, &lead.Email,
		&lead.Region, &lead.Stage,
		&lead.Consent.SMS, &lead.Consent.Email, &lead.Consent.Call,
		&lead.Autonomous, &lead.AutomationDisabled,
		&lead.Attributes, &lead.LastContactedAt, &lead.NextReviewAt,
		&lead.ApplicationStartedAt, &lead.ApplicationCompletedAt,
		&lead.LockedUntil, &lead.CreatedAt, &lead.UpdatedAt,
	)
	return lead, err
}

type CreateLeadParams struct {
	FirstName  string
	LastName   string
	Phone      string
	Email      *string
	Region     string
	Consent    domain.Consent
	Autonomous bool
	Attributes map[string]string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			first_name, last_name, phone, email, region, stage,
			consent_sms, consent_email, consent_call, autonomous, attributes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+leadColumns,
		params.FirstName, params.LastName, params.Phone, params.Email,
		params.Region, domain.StageNew,
		params.Consent.SMS, params.Consent.Email, params.Consent.Call,
		params.Autonomous, params.Attributes,
	)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE phone = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, phone)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// SelectDueLeads returns leads eligible for an autonomous review: consented,
// not terminal, not paused, review due, and not contacted within the
// exclusion window. Ordered most-overdue first.
func (r *Repository) SelectDueLeads(ctx context.Context, now time.Time, exclusion time.Duration, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE deleted_at IS NULL
		  AND autonomous = true
		  AND automation_disabled = false
		  AND stage NOT IN ($1, $2)
		  AND (consent_sms OR consent_email OR consent_call)
		  AND (next_review_at IS NULL OR next_review_at <= $3)
		  AND (last_contacted_at IS NULL OR last_contacted_at <= $4)
		ORDER BY next_review_at ASC NULLS FIRST
		LIMIT $5
	`, domain.StageConverted, domain.StageLost, now, now.Add(-exclusion), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// AcquireLease claims a lead for processing with a compare-and-set on
// locked_until. Returns false when another worker holds a live lease.
func (r *Repository) AcquireLease(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads SET locked_until = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		  AND (locked_until IS NULL OR locked_until < $3)
	`, id, until, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) ReleaseLease(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET locked_until = NULL, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return err
}

func (r *Repository) UpdateNextReview(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET next_review_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	return err
}

func (r *Repository) SetLastContacted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET last_contacted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	return err
}

func (r *Repository) SetStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads SET stage = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, stage)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetAutomationDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET automation_disabled = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, disabled)
	return err
}

// RevokeConsent clears consent for one channel, or all channels when
// channel is empty.
func (r *Repository) RevokeConsent(ctx context.Context, id uuid.UUID, channel domain.Channel) error {
	var query string
	switch channel {
	case domain.ChannelSMS:
		query = `UPDATE leads SET consent_sms = false, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	case domain.ChannelEmail:
		query = `UPDATE leads SET consent_email = false, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	case domain.ChannelCall:
		query = `UPDATE leads SET consent_call = false, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	default:
		query = `UPDATE leads SET consent_sms = false, consent_email = false, consent_call = false, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	}
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OverdueLead is a summary row for the overdue sweep.
type OverdueLead struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	NextReviewAt time.Time
}

// ListOverdue returns active autonomous leads whose review slipped past the
// given threshold.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time, threshold time.Duration) ([]OverdueLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, first_name, last_name, next_review_at
		FROM leads
		WHERE deleted_at IS NULL
		  AND autonomous = true
		  AND automation_disabled = false
		  AND stage NOT IN ($1, $2)
		  AND next_review_at IS NOT NULL
		  AND next_review_at < $3
		ORDER BY next_review_at ASC
	`, domain.StageConverted, domain.StageLost, now.Add(-threshold))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]OverdueLead, 0)
	for rows.Next() {
		var item OverdueLead
		if err := rows.Scan(&item.ID, &item.FirstName, &item.LastName, &item.NextReviewAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
