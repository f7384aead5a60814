package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/leads/domain"
)

type CreateCommunicationParams struct {
	LeadID    uuid.UUID
	Direction domain.Direction
	Channel   domain.Channel
	Content   string
	IsManual  bool
	SentBy    *uuid.UUID
}

// AddCommunication appends one contact record. Rows are never updated.
func (r *Repository) AddCommunication(ctx context.Context, params CreateCommunicationParams) (domain.Communication, error) {
	var comm domain.Communication
	err := r.pool.QueryRow(ctx, `
		INSERT INTO communications (lead_id, direction, channel, content, is_manual, sent_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, lead_id, direction, channel, content, is_manual, sent_by, created_at
	`, params.LeadID, params.Direction, params.Channel, params.Content, params.IsManual, params.SentBy).Scan(
		&comm.ID, &comm.LeadID, &comm.Direction, &comm.Channel, &comm.Content,
		&comm.IsManual, &comm.SentBy, &comm.CreatedAt,
	)
	return comm, err
}

// ListRecentCommunications returns the newest records first.
func (r *Repository) ListRecentCommunications(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Communication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, direction, channel, content, is_manual, sent_by, created_at
		FROM communications
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
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

// LastOutboundAt returns the time of the most recent outbound record, or
// zero when the lead was never contacted.
func (r *Repository) LastOutboundAt(ctx context.Context, leadID uuid.UUID) (time.Time, error) {
	var at *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(created_at) FROM communications
		WHERE lead_id = $1 AND direction = $2
	`, leadID, domain.DirectionOutbound).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	if at == nil {
		return time.Time{}, nil
	}
	return *at, nil
}
