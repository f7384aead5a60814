// Package engine runs the autonomous nurture loop: select due leads, compute
// their engagement signal, ask the oracle for a next step, validate it, and
// execute. One lead failing never stops the batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/channels"
	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/guard"
	"nurture_backend/internal/leads/health"
	"nurture_backend/internal/leads/oracle"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/timezone"
)

// Reschedule intervals after each non-send outcome. Quiet-hours rejections
// are the exception: they reschedule to the lead's next local morning.
const (
	BackoffValidation = 1 * time.Hour
	BackoffError      = 2 * time.Hour
	BackoffRepetition = 6 * time.Hour
	BackoffEscalate   = 48 * time.Hour

	// ExclusionWindow keeps just-contacted leads out of the next batch.
	ExclusionWindow = 10 * time.Minute

	// OverdueThreshold is how far a review may slip before the sweep alerts.
	OverdueThreshold = 24 * time.Hour

	// LeaseDuration bounds how long one worker may hold a lead.
	LeaseDuration = 5 * time.Minute

	// historyLimit caps how much conversation the analyzer and oracle see.
	historyLimit = 50
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	SelectDueLeads(ctx context.Context, now time.Time, exclusion time.Duration, limit int) ([]domain.Lead, error)
	AcquireLease(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id uuid.UUID) error
	UpdateNextReview(ctx context.Context, id uuid.UUID, at time.Time) error
	SetLastContacted(ctx context.Context, id uuid.UUID, at time.Time) error
	AddCommunication(ctx context.Context, params repository.CreateCommunicationParams) (domain.Communication, error)
	ListRecentCommunications(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Communication, error)
	ListAppointments(ctx context.Context, leadID uuid.UUID) ([]domain.Appointment, error)
	LatestCallOutcome(ctx context.Context, leadID uuid.UUID) (*domain.CallOutcome, error)
	RevokeConsent(ctx context.Context, id uuid.UUID, channel domain.Channel) error
	ListOverdue(ctx context.Context, now time.Time, threshold time.Duration) ([]repository.OverdueLead, error)
}

// Oracle proposes the next action for a lead.
type Oracle interface {
	Propose(ctx context.Context, req oracle.Request) (domain.ProposedAction, error)
}

// OutcomeArmer registers a sent message for deferred evaluation.
type OutcomeArmer interface {
	Arm(ctx context.Context, leadID, commID uuid.UUID, channel domain.Channel, sentAt time.Time) error
}

type Engine struct {
	store     Store
	oracle    Oracle
	senders   channels.Registry
	outcomes  OutcomeArmer
	analyzer  *health.Analyzer
	validator *guard.Validator
	bus       events.Bus
	toggles   config.AgentToggles
	log       *logger.Logger
	clock     func() time.Time
}

func New(store Store, o Oracle, senders channels.Registry, outcomes OutcomeArmer,
	analyzer *health.Analyzer, validator *guard.Validator, bus events.Bus,
	toggles config.AgentToggles, log *logger.Logger) *Engine {
	return &Engine{
		store:     store,
		oracle:    o,
		senders:   senders,
		outcomes:  outcomes,
		analyzer:  analyzer,
		validator: validator,
		bus:       bus,
		toggles:   toggles,
		log:       log,
		clock:     time.Now,
	}
}

// RunCycle processes one batch of due leads. Per-lead failures are logged
// and contained; the error count is returned for the dispatcher's metrics.
func (e *Engine) RunCycle(ctx context.Context, batchSize int) (processed, failed int, err error) {
	if !e.toggles.Enabled {
		return 0, 0, nil
	}

	now := e.clock()
	cycleID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.CycleIDKey, cycleID)
	log := e.log.WithContext(ctx)

	leads, err := e.store.SelectDueLeads(ctx, now, ExclusionWindow, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("select due leads: %w", err)
	}
	log.Info("cycle_started", "due", len(leads))

	for _, lead := range leads {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if err := e.ProcessLead(ctx, lead.ID); err != nil {
			failed++
			log.Error("lead_processing_failed", "lead_id", lead.ID.String(), "error", err.Error())
			continue
		}
		processed++
	}

	log.Info("cycle_finished", "processed", processed, "failed", failed)
	return processed, failed, nil
}

// ProcessLead runs one full decision pass for one lead on the batch path.
func (e *Engine) ProcessLead(ctx context.Context, leadID uuid.UUID) error {
	return e.process(ctx, leadID, false)
}

// ProcessReactive runs a decision pass for a lead that just replied. Unlike
// the batch path it does not skip terminal-stage leads: a converted lead who
// asks a question still deserves an answer, with the terminal-stage guard
// rule limiting what that answer may contain.
func (e *Engine) ProcessReactive(ctx context.Context, leadID uuid.UUID) error {
	return e.process(ctx, leadID, true)
}

func (e *Engine) process(ctx context.Context, leadID uuid.UUID, reactive bool) error {
	if !e.toggles.Enabled {
		return nil
	}

	now := e.clock()
	ctx = context.WithValue(ctx, logger.LeadIDKey, leadID.String())
	log := e.log.WithContext(ctx)

	if !e.inRollout(leadID) {
		log.Debug("lead outside rollout")
		if reactive {
			return nil
		}
		// Out-of-rollout leads are parked a day at a time so the batch
		// query does not keep returning them.
		return e.store.UpdateNextReview(ctx, leadID, now.Add(24*time.Hour))
	}

	acquired, err := e.store.AcquireLease(ctx, leadID, now, now.Add(LeaseDuration))
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		log.Debug("lead leased by another worker")
		return nil
	}
	defer func() {
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), leadID); err != nil {
			log.Error("release lease failed", "error", err.Error())
		}
	}()

	lead, err := e.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("lead vanished before review")
			return nil
		}
		e.deferReview(ctx, leadID, now)
		return fmt.Errorf("load lead: %w", err)
	}
	if skip, reason := e.shouldSkip(lead, reactive); skip {
		log.Info("lead skipped", "reason", reason)
		return nil
	}

	comms, err := e.store.ListRecentCommunications(ctx, leadID, historyLimit)
	if err != nil {
		e.deferReview(ctx, leadID, now)
		return fmt.Errorf("load communications: %w", err)
	}
	appts, err := e.store.ListAppointments(ctx, leadID)
	if err != nil {
		e.deferReview(ctx, leadID, now)
		return fmt.Errorf("load appointments: %w", err)
	}
	lastCall, err := e.store.LatestCallOutcome(ctx, leadID)
	if err != nil {
		e.deferReview(ctx, leadID, now)
		return fmt.Errorf("load call outcome: %w", err)
	}

	signal := e.analyzer.Analyze(health.Input{
		Lead:           lead,
		Communications: comms,
		Appointments:   appts,
		LastCall:       lastCall,
		Now:            now,
	})

	proposal, err := e.oracle.Propose(ctx, oracle.Request{
		Lead:           lead,
		Signal:         signal,
		Communications: comms,
		LastCall:       lastCall,
		Now:            now,
	})
	if err != nil {
		log.Error("oracle failed", "error", err.Error())
		return e.store.UpdateNextReview(ctx, leadID, now.Add(BackoffError))
	}

	return e.execute(ctx, lead, signal, proposal, comms, appts, now)
}

// execute validates the proposal and carries it out, scheduling the next
// review according to what happened.
func (e *Engine) execute(ctx context.Context, lead domain.Lead, signal health.Signal,
	proposal domain.ProposedAction, comms []domain.Communication, appts []domain.Appointment, now time.Time) error {
	log := e.log.WithContext(ctx)

	result := e.validator.Validate(guard.Input{
		Action:         proposal,
		Lead:           lead,
		Signal:         signal,
		Communications: comms,
		Appointments:   appts,
		Now:            now,
	})
	if !result.OK() {
		e.log.PolicyRejection(lead.ID.String(), string(proposal.Type), result.Reasons())
		next := now.Add(BackoffValidation)
		if result.Has(guard.CodeQuietHours) {
			next = timezone.NextLocalHour(lead.Region, now, guard.QuietHoursStart)
		}
		return e.store.UpdateNextReview(ctx, lead.ID, next)
	}
	if len(result.Warnings) > 0 {
		e.log.QualityWarning(lead.ID.String(), string(proposal.Type), result.Warnings)
	}

	// Repetition is checked after the hard rules so that a violation keeps
	// its own reschedule policy. A duplicate proposed during quiet hours
	// still waits for the lead's morning, not the repetition backoff.
	if proposal.IsSend() {
		verdict := guard.CheckRepetition(proposal.Message, recentOutbound(comms))
		if verdict.Repetitive {
			log.Info("repetitive message suppressed", "reason", verdict.Reason)
			return e.store.UpdateNextReview(ctx, lead.ID, now.Add(BackoffRepetition))
		}
	}

	switch proposal.Type {
	case domain.ActionWait:
		wait := proposal.Wait
		if wait <= 0 {
			wait = reviewInterval(signal)
		}
		log.Info("waiting", "hours", wait.Hours(), "reason", proposal.Reason)
		return e.store.UpdateNextReview(ctx, lead.ID, now.Add(wait))

	case domain.ActionEscalate:
		e.bus.Publish(ctx, events.EscalationRaised{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			LeadName:  lead.FirstName + " " + lead.LastName,
			Reason:    proposal.Reason,
		})
		log.Info("escalated", "reason", proposal.Reason)
		return e.store.UpdateNextReview(ctx, lead.ID, now.Add(BackoffEscalate))

	case domain.ActionSendMessage, domain.ActionSendBookingLink:
		return e.send(ctx, lead, signal, proposal, now)

	default:
		return fmt.Errorf("unhandled action type %q", proposal.Type)
	}
}

func (e *Engine) send(ctx context.Context, lead domain.Lead, signal health.Signal,
	proposal domain.ProposedAction, now time.Time) error {
	log := e.log.WithContext(ctx)

	if e.toggles.DryRun {
		log.Info("dry_run_send",
			"channel", string(proposal.Channel),
			"message", proposal.Message,
			"confidence", proposal.Confidence,
		)
		// Nothing was persisted, so the event carries no communication ID.
		e.bus.Publish(ctx, events.MessageSent{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Channel:   string(proposal.Channel),
			DryRun:    true,
		})
		return e.store.UpdateNextReview(ctx, lead.ID, now.Add(reviewInterval(signal)))
	}

	sender := e.senders.For(proposal.Channel)
	if sender == nil {
		log.Error("no sender configured", "channel", string(proposal.Channel))
		return e.store.UpdateNextReview(ctx, lead.ID, now.Add(BackoffError))
	}

	if err := sender.Send(ctx, lead, proposal.Message); err != nil {
		if errors.Is(err, channels.ErrConsentRevoked) {
			log.Info("consent revoked during delivery", "channel", string(proposal.Channel))
			if err := e.store.RevokeConsent(ctx, lead.ID, proposal.Channel); err != nil {
				return fmt.Errorf("revoke consent: %w", err)
			}
			e.bus.Publish(ctx, events.ConsentRevoked{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    lead.ID,
				Channel:   string(proposal.Channel),
				Source:    "delivery_rejection",
			})
			return nil
		}
		e.log.ChannelError(string(proposal.Channel), lead.ID.String(), err)
		return e.store.UpdateNextReview(ctx, lead.ID, now.Add(BackoffError))
	}

	comm, err := e.store.AddCommunication(ctx, repository.CreateCommunicationParams{
		LeadID:    lead.ID,
		Direction: domain.DirectionOutbound,
		Channel:   proposal.Channel,
		Content:   proposal.Message,
	})
	if err != nil {
		return fmt.Errorf("record communication: %w", err)
	}
	if err := e.store.SetLastContacted(ctx, lead.ID, now); err != nil {
		return fmt.Errorf("set last contacted: %w", err)
	}
	if err := e.outcomes.Arm(ctx, lead.ID, comm.ID, proposal.Channel, now); err != nil {
		log.Error("arm outcome tracker failed", "error", err.Error())
	}

	e.bus.Publish(ctx, events.MessageSent{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          lead.ID,
		CommunicationID: comm.ID,
		Channel:         string(proposal.Channel),
	})
	log.Info("message_sent", "channel", string(proposal.Channel), "confidence", proposal.Confidence)

	return e.store.UpdateNextReview(ctx, lead.ID, now.Add(reviewInterval(signal)))
}

// SweepOverdue alerts when reviews have slipped more than a day. It never
// processes leads itself; surfacing the backlog is the point.
func (e *Engine) SweepOverdue(ctx context.Context) error {
	now := e.clock()
	overdue, err := e.store.ListOverdue(ctx, now, OverdueThreshold)
	if err != nil {
		return fmt.Errorf("list overdue: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(overdue))
	for i, o := range overdue {
		ids[i] = o.ID
	}
	e.bus.Publish(ctx, events.LeadsOverdue{
		BaseEvent:    events.NewBaseEvent(),
		Count:        len(overdue),
		OldestReview: overdue[0].NextReviewAt,
		LeadIDs:      ids,
		Overdue:      now.Sub(overdue[0].NextReviewAt),
	})
	e.log.Warn("overdue_leads", "count", len(overdue))
	return nil
}

// deferReview pushes the next review out after a transient store failure so
// the lead is retried later instead of starving at the front of the due
// queue. Best effort: the original failure is what gets reported.
func (e *Engine) deferReview(ctx context.Context, leadID uuid.UUID, now time.Time) {
	if err := e.store.UpdateNextReview(ctx, leadID, now.Add(BackoffError)); err != nil {
		e.log.WithContext(ctx).Error("defer review failed", "error", err.Error())
	}
}

// shouldSkip applies the hard eligibility gates. The terminal-stage gate
// only applies to batch reviews; reactive reviews of converted leads fall
// through to the validator's terminal-stage rule instead.
func (e *Engine) shouldSkip(lead domain.Lead, reactive bool) (bool, string) {
	switch {
	case !reactive && domain.IsTerminal(lead.Stage):
		return true, "terminal_stage"
	case lead.AutomationDisabled:
		return true, "automation_disabled"
	case !lead.Autonomous:
		return true, "not_autonomous"
	case !lead.Consent.AnyChannel():
		return true, "no_consent"
	}
	return false, ""
}

// inRollout hashes the lead ID so rollout membership is stable across
// cycles and workers.
func (e *Engine) inRollout(leadID uuid.UUID) bool {
	pct := e.toggles.RolloutPercent
	if pct >= 100 {
		return true
	}
	if pct <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write(leadID[:])
	return int(h.Sum32()%100) < pct
}

func reviewInterval(signal health.Signal) time.Duration {
	return time.Duration(signal.ReviewAfterHours * float64(time.Hour))
}

func recentOutbound(comms []domain.Communication) []string {
	out := make([]string, 0, len(comms))
	for _, c := range comms {
		if c.Direction == domain.DirectionOutbound {
			out = append(out, c.Content)
		}
	}
	return out
}
