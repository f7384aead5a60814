// Package webhook provides the inbound integration surface: reply delivery
// reports, consent revocations, call outcomes, and appointments posted by
// external providers.
package webhook

import (
	"context"
	"errors"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/phone"
	"nurture_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the webhook service needs.
// Satisfied by repository.Repository.
type Store interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error)
	GetByPhone(ctx context.Context, phone string) (domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	AddCommunication(ctx context.Context, params repository.CreateCommunicationParams) (domain.Communication, error)
	RevokeConsent(ctx context.Context, id uuid.UUID, channel domain.Channel) error
	AddCallOutcome(ctx context.Context, params repository.CreateCallOutcomeParams) (domain.CallOutcome, error)
	CreateAppointment(ctx context.Context, params repository.CreateAppointmentParams) (domain.Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error
	SetStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error
}

// ReviewEnqueuer schedules an out-of-band review for a lead.
// Satisfied by scheduler.Client.
type ReviewEnqueuer interface {
	EnqueueLeadReview(ctx context.Context, leadID uuid.UUID, trigger string) error
}

// Service handles inbound provider reports and turns them into domain state.
type Service struct {
	store Store
	tasks ReviewEnqueuer
	bus   events.Bus
	log   *logger.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, tasks ReviewEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store: store,
		tasks: tasks,
		bus:   bus,
		log:   log,
	}
}

// LeadIntake is a new lead posted by an external capture form or provider.
type LeadIntake struct {
	FirstName    string
	LastName     string
	Phone        string
	Email        *string
	Region       string
	ConsentSMS   bool
	ConsentEmail bool
	ConsentCall  bool
	Autonomous   bool
	Attributes   map[string]string
}

// RegisterLead creates a lead from an intake payload. Intake is idempotent
// on phone number: reposting an existing lead returns the stored record.
func (s *Service) RegisterLead(ctx context.Context, intake LeadIntake) (domain.Lead, bool, error) {
	normalized, ok := phone.ParseE164(intake.Phone)
	if !ok {
		return domain.Lead{}, false, apperr.Validation("phone number is not valid")
	}

	existing, err := s.store.GetByPhone(ctx, normalized)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, false, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err)
	}

	lead, err := s.store.Create(ctx, repository.CreateLeadParams{
		FirstName: sanitize.Text(intake.FirstName),
		LastName:  sanitize.Text(intake.LastName),
		Phone:     normalized,
		Email:     sanitize.TextPtr(intake.Email),
		Region:    intake.Region,
		Consent: domain.Consent{
			SMS:   intake.ConsentSMS,
			Email: intake.ConsentEmail,
			Call:  intake.ConsentCall,
		},
		Autonomous: intake.Autonomous,
		Attributes: intake.Attributes,
	})
	if err != nil {
		return domain.Lead{}, false, apperr.Wrap(apperr.KindInternal, "lead creation failed", err)
	}

	s.log.Info("lead_registered",
		"lead_id", lead.ID.String(),
		"region", lead.Region,
		"autonomous", lead.Autonomous,
	)
	return lead, true, nil
}

// InboundReply is a message a lead sent back on one of our channels.
type InboundReply struct {
	Phone   string
	Channel domain.Channel
	Content string
}

// RecordInboundReply appends the reply to the lead's history, publishes the
// inbound event, and enqueues a reactive review. Replies are accepted even
// for terminal-stage leads.
func (s *Service) RecordInboundReply(ctx context.Context, reply InboundReply) (domain.Communication, error) {
	lead, err := s.resolveByPhone(ctx, reply.Phone)
	if err != nil {
		return domain.Communication{}, err
	}

	content := sanitize.Text(reply.Content)
	if content == "" {
		return domain.Communication{}, apperr.Validation("reply content is empty")
	}

	comm, err := s.store.AddCommunication(ctx, repository.CreateCommunicationParams{
		LeadID:    lead.ID,
		Direction: domain.DirectionInbound,
		Channel:   reply.Channel,
		Content:   content,
	})
	if err != nil {
		return domain.Communication{}, apperr.Wrap(apperr.KindInternal, "failed to record reply", err)
	}

	s.bus.Publish(ctx, events.InboundReceived{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Channel:   string(reply.Channel),
		Content:   content,
	})

	// Reactive reviews are best effort. The next batch cycle picks the
	// lead up anyway.
	if err := s.tasks.EnqueueLeadReview(ctx, lead.ID, scheduler.TriggerInbound); err != nil {
		s.log.Error("reactive_review_enqueue_failed",
			"lead_id", lead.ID.String(),
			"error", err.Error(),
		)
	}

	return comm, nil
}

// ConsentRevocation is an opt-out report from a delivery provider. An empty
// channel revokes all channels.
type ConsentRevocation struct {
	Phone   string
	Channel domain.Channel
	Source  string
}

// RevokeConsent clears the lead's consent flags and publishes the event.
func (s *Service) RevokeConsent(ctx context.Context, rev ConsentRevocation) error {
	lead, err := s.resolveByPhone(ctx, rev.Phone)
	if err != nil {
		return err
	}

	if err := s.store.RevokeConsent(ctx, lead.ID, rev.Channel); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to revoke consent", err)
	}

	s.bus.Publish(ctx, events.ConsentRevoked{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Channel:   string(rev.Channel),
		Source:    rev.Source,
	})

	s.log.Info("consent_revoked",
		"lead_id", lead.ID.String(),
		"channel", string(rev.Channel),
		"source", rev.Source,
	)
	return nil
}

// CallReport is the result of an advisor call, posted by the telephony side.
type CallReport struct {
	Phone          string
	Outcome        string
	Notes          *string
	ReadyToProceed bool
	OccurredAt     time.Time
}

// RecordCallOutcome stores the call result and moves the lead to the
// call-completed stage.
func (s *Service) RecordCallOutcome(ctx context.Context, report CallReport) (domain.CallOutcome, error) {
	lead, err := s.resolveByPhone(ctx, report.Phone)
	if err != nil {
		return domain.CallOutcome{}, err
	}

	occurredAt := report.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	call, err := s.store.AddCallOutcome(ctx, repository.CreateCallOutcomeParams{
		LeadID:         lead.ID,
		Outcome:        report.Outcome,
		Notes:          sanitize.TextPtr(report.Notes),
		ReadyToProceed: report.ReadyToProceed,
		OccurredAt:     occurredAt,
	})
	if err != nil {
		return domain.CallOutcome{}, apperr.Wrap(apperr.KindInternal, "failed to record call outcome", err)
	}

	if !domain.IsTerminal(lead.Stage) {
		if err := s.store.SetStage(ctx, lead.ID, domain.StageCallCompleted); err != nil {
			return domain.CallOutcome{}, apperr.Wrap(apperr.KindInternal, "failed to update stage", err)
		}
	}

	return call, nil
}

// AppointmentBooking schedules a consultation with an advisor.
type AppointmentBooking struct {
	Phone     string
	AdvisorID uuid.UUID
	StartTime time.Time
}

// BookAppointment records the appointment and moves the lead to the
// call-scheduled stage.
func (s *Service) BookAppointment(ctx context.Context, booking AppointmentBooking) (domain.Appointment, error) {
	lead, err := s.resolveByPhone(ctx, booking.Phone)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.store.CreateAppointment(ctx, repository.CreateAppointmentParams{
		LeadID:    lead.ID,
		AdvisorID: booking.AdvisorID,
		StartTime: booking.StartTime,
	})
	if err != nil {
		return domain.Appointment{}, apperr.Wrap(apperr.KindInternal, "failed to create appointment", err)
	}

	if !domain.IsTerminal(lead.Stage) {
		if err := s.store.SetStage(ctx, lead.ID, domain.StageCallScheduled); err != nil {
			return domain.Appointment{}, apperr.Wrap(apperr.KindInternal, "failed to update stage", err)
		}
	}

	return appt, nil
}

// UpdateAppointmentStatus applies a provider status change to an appointment.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	if err := s.store.SetAppointmentStatus(ctx, id, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("appointment not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to update appointment", err)
	}
	return nil
}

func (s *Service) resolveByPhone(ctx context.Context, raw string) (domain.Lead, error) {
	normalized, ok := phone.ParseE164(raw)
	if !ok {
		return domain.Lead{}, apperr.Validation("phone number is not valid")
	}

	lead, err := s.store.GetByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("no lead with this phone number")
		}
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err)
	}
	return lead, nil
}
