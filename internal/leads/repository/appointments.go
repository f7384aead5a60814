package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nurture_backend/internal/leads/domain"
)

type CreateAppointmentParams struct {
	LeadID    uuid.UUID
	AdvisorID uuid.UUID
	StartTime time.Time
}

func (r *Repository) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (lead_id, advisor_id, status, start_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id, lead_id, status, start_time, advisor_id, created_at
	`, params.LeadID, params.AdvisorID, domain.AppointmentScheduled, params.StartTime).Scan(
		&appt.ID, &appt.LeadID, &appt.Status, &appt.StartTime, &appt.AdvisorID, &appt.CreatedAt,
	)
	return appt, err
}

func (r *Repository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListAppointments(ctx context.Context, leadID uuid.UUID) ([]domain.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, status, start_time, advisor_id, created_at
		FROM appointments
		WHERE lead_id = $1
		ORDER BY start_time DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]domain.Appointment, 0)
	for rows.Next() {
		var appt domain.Appointment
		if err := rows.Scan(&appt.ID, &appt.LeadID, &appt.Status, &appt.StartTime, &appt.AdvisorID, &appt.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

type CreateCallOutcomeParams struct {
	LeadID         uuid.UUID
	Outcome        string
	Notes          *string
	ReadyToProceed bool
	OccurredAt     time.Time
}

func (r *Repository) AddCallOutcome(ctx context.Context, params CreateCallOutcomeParams) (domain.CallOutcome, error) {
	var call domain.CallOutcome
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_outcomes (lead_id, outcome, notes, ready_to_proceed, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, lead_id, outcome, notes, ready_to_proceed, occurred_at
	`, params.LeadID, params.Outcome, params.Notes, params.ReadyToProceed, params.OccurredAt).Scan(
		&call.ID, &call.LeadID, &call.Outcome, &call.Notes, &call.ReadyToProceed, &call.OccurredAt,
	)
	return call, err
}

// LatestCallOutcome returns the most recent call record, or nil when the
// lead has never completed a call.
func (r *Repository) LatestCallOutcome(ctx context.Context, leadID uuid.UUID) (*domain.CallOutcome, error) {
	var call domain.CallOutcome
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, outcome, notes, ready_to_proceed, occurred_at
		FROM call_outcomes
		WHERE lead_id = $1
		ORDER BY occurred_at DESC
		LIMIT 1
	`, leadID).Scan(
		&call.ID, &call.LeadID, &call.Outcome, &call.Notes, &call.ReadyToProceed, &call.OccurredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}
