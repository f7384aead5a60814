package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nurture_backend/internal/leads/domain"
)

// OutcomeStatus tracks the lifecycle of a deferred evaluation.
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeEvaluated OutcomeStatus = "evaluated"
)

// OutcomeRecord tracks what happened after one outbound message. It is
// written once when pending and finalized exactly once at evaluation.
type OutcomeRecord struct {
	ID              uuid.UUID
	LeadID          uuid.UUID
	CommunicationID uuid.UUID
	Channel         domain.Channel
	Status          OutcomeStatus
	SentAt          time.Time
	EvaluateAfter   time.Time
	EvaluatedAt     *time.Time
	Result          *string
	ReplyLatencySec *int64
	CreatedAt       time.Time
}

type CreateOutcomeParams struct {
	LeadID          uuid.UUID
	CommunicationID uuid.UUID
	Channel         domain.Channel
	SentAt          time.Time
	EvaluateAfter   time.Time
}

// CreateOutcomePending arms the tracker for one send. The evaluate_after
// stamp survives restarts so the evaluation task can be re-enqueued.
func (r *Repository) CreateOutcomePending(ctx context.Context, params CreateOutcomeParams) (OutcomeRecord, error) {
	var rec OutcomeRecord
	err := r.pool.QueryRow(ctx, `
		INSERT INTO outcomes (lead_id, communication_id, channel, status, sent_at, evaluate_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, lead_id, communication_id, channel, status, sent_at, evaluate_after,
			evaluated_at, result, reply_latency_sec, created_at
	`, params.LeadID, params.CommunicationID, params.Channel, OutcomePending,
		params.SentAt, params.EvaluateAfter).Scan(
		&rec.ID, &rec.LeadID, &rec.CommunicationID, &rec.Channel, &rec.Status,
		&rec.SentAt, &rec.EvaluateAfter, &rec.EvaluatedAt, &rec.Result,
		&rec.ReplyLatencySec, &rec.CreatedAt,
	)
	return rec, err
}

func (r *Repository) GetOutcome(ctx context.Context, id uuid.UUID) (OutcomeRecord, error) {
	var rec OutcomeRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, communication_id, channel, status, sent_at, evaluate_after,
			evaluated_at, result, reply_latency_sec, created_at
		FROM outcomes WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.LeadID, &rec.CommunicationID, &rec.Channel, &rec.Status,
		&rec.SentAt, &rec.EvaluateAfter, &rec.EvaluatedAt, &rec.Result,
		&rec.ReplyLatencySec, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeRecord{}, ErrNotFound
	}
	return rec, err
}

// FinalizeOutcome records the evaluation result. The pending guard makes the
// write idempotent under task retries.
func (r *Repository) FinalizeOutcome(ctx context.Context, id uuid.UUID, result string, replyLatency *time.Duration, at time.Time) error {
	var latencySec *int64
	if replyLatency != nil {
		sec := int64(replyLatency.Seconds())
		latencySec = &sec
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE outcomes SET status = $2, result = $3, reply_latency_sec = $4, evaluated_at = $5
		WHERE id = $1 AND status = $6
	`, id, OutcomeEvaluated, result, latencySec, at, OutcomePending)
	return err
}

// ListPendingOutcomesDue returns pending records whose evaluation time has
// passed. The scheduler uses it to recover evaluations lost to a restart.
func (r *Repository) ListPendingOutcomesDue(ctx context.Context, now time.Time) ([]OutcomeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, communication_id, channel, status, sent_at, evaluate_after,
			evaluated_at, result, reply_latency_sec, created_at
		FROM outcomes
		WHERE status = $1 AND evaluate_after <= $2
		ORDER BY evaluate_after ASC
	`, OutcomePending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]OutcomeRecord, 0)
	for rows.Next() {
		var rec OutcomeRecord
		if err := rows.Scan(
			&rec.ID, &rec.LeadID, &rec.CommunicationID, &rec.Channel, &rec.Status,
			&rec.SentAt, &rec.EvaluateAfter, &rec.EvaluatedAt, &rec.Result,
			&rec.ReplyLatencySec, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CommunicationsSince returns records for the lead created strictly after
// the given time, oldest first. The outcome evaluator reads the post-send
// slice of the conversation through it.
func (r *Repository) CommunicationsSince(ctx context.Context, leadID uuid.UUID, since time.Time) ([]domain.Communication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, direction, channel, content, is_manual, sent_by, created_at
		FROM communications
		WHERE lead_id = $1 AND created_at > $2
		ORDER BY created_at ASC
	`, leadID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comms := make([]domain.Communication, 0)
	for rows.Next() {
		var comm domain.Communication
		if err := rows.Scan(
			&comm.ID, &comm.LeadID, &comm.Direction, &comm.Channel, &comm.Content,
			&comm.IsManual, &comm.SentBy, &comm.CreatedAt,
		); err != nil {
			return nil, err
		}
		comms = append(comms, comm)
	}
	return comms, rows.Err()
}

// AppointmentsSince returns appointments created after the given time.
func (r *Repository) AppointmentsSince(ctx context.Context, leadID uuid.UUID, since time.Time) ([]domain.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, status, start_time, advisor_id, created_at
		FROM appointments
		WHERE lead_id = $1 AND created_at > $2
		ORDER BY created_at ASC
	`, leadID, since)
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
