// Package outcome observes what happened after each autonomous send. A
// tracked message is evaluated once, a fixed window after sending, by
// re-reading the conversation. Results feed offline analysis only and are
// never an input to the decision cycle that produced the send.
package outcome

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/logger"
)

// EvaluationWindow is how long after a send the outcome is judged.
const EvaluationWindow = 4 * time.Hour

// Result classifies what the lead did inside the evaluation window.
const (
	ResultBooked          = "BOOKED"
	ResultOptedOut        = "OPTED_OUT"
	ResultEngagedNegative = "ENGAGED_NEGATIVE"
	ResultEngagedPositive = "ENGAGED_POSITIVE"
	ResultGhosted         = "GHOSTED"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	CreateOutcomePending(ctx context.Context, params repository.CreateOutcomeParams) (repository.OutcomeRecord, error)
	GetOutcome(ctx context.Context, id uuid.UUID) (repository.OutcomeRecord, error)
	FinalizeOutcome(ctx context.Context, id uuid.UUID, result string, replyLatency *time.Duration, at time.Time) error
	CommunicationsSince(ctx context.Context, leadID uuid.UUID, since time.Time) ([]domain.Communication, error)
	AppointmentsSince(ctx context.Context, leadID uuid.UUID, since time.Time) ([]domain.Appointment, error)
}

// Enqueuer schedules the deferred evaluation task.
type Enqueuer interface {
	EnqueueOutcomeEvaluation(ctx context.Context, outcomeID uuid.UUID, at time.Time) error
}

type Tracker struct {
	store Store
	tasks Enqueuer
	log   *logger.Logger
}

func NewTracker(store Store, tasks Enqueuer, log *logger.Logger) *Tracker {
	return &Tracker{store: store, tasks: tasks, log: log}
}

// Arm registers a sent message for deferred evaluation. The evaluate-after
// stamp is persisted with the record so a lost queue can be replayed.
func (t *Tracker) Arm(ctx context.Context, leadID, commID uuid.UUID, channel domain.Channel, sentAt time.Time) error {
	rec, err := t.store.CreateOutcomePending(ctx, repository.CreateOutcomeParams{
		LeadID:          leadID,
		CommunicationID: commID,
		Channel:         channel,
		SentAt:          sentAt,
		EvaluateAfter:   sentAt.Add(EvaluationWindow),
	})
	if err != nil {
		return err
	}
	return t.tasks.EnqueueOutcomeEvaluation(ctx, rec.ID, rec.EvaluateAfter)
}

// Evaluate judges one pending record. Safe to call more than once: an
// already-evaluated record is left untouched.
func (t *Tracker) Evaluate(ctx context.Context, outcomeID uuid.UUID, now time.Time) error {
	rec, err := t.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return err
	}
	if rec.Status != repository.OutcomePending {
		return nil
	}

	appts, err := t.store.AppointmentsSince(ctx, rec.LeadID, rec.SentAt)
	if err != nil {
		return err
	}
	comms, err := t.store.CommunicationsSince(ctx, rec.LeadID, rec.SentAt)
	if err != nil {
		return err
	}

	result, latency := judge(rec.SentAt, appts, comms)

	if err := t.store.FinalizeOutcome(ctx, outcomeID, result, latency, now); err != nil {
		return err
	}
	t.log.Info("outcome_evaluated",
		"lead_id", rec.LeadID.String(),
		"outcome_id", outcomeID.String(),
		"result", result,
	)
	return nil
}

// judge applies the outcome rules: an appointment beats everything, then the
// first inbound reply is classified by phrasing, then silence is ghosting.
func judge(sentAt time.Time, appts []domain.Appointment, comms []domain.Communication) (string, *time.Duration) {
	if len(appts) > 0 {
		return ResultBooked, nil
	}
	for _, c := range comms {
		if c.Direction != domain.DirectionInbound {
			continue
		}
		latency := c.CreatedAt.Sub(sentAt)
		return classifyReply(c.Content), &latency
	}
	return ResultGhosted, nil
}

var optOutPhrases = []string{
	"stop", "unsubscribe", "opt out", "opt-out", "remove me",
	"do not contact", "don't contact", "don't text", "do not text",
	"leave me alone",
}

var declinePhrases = []string{
	"not interested", "no longer interested", "no thanks", "no thank you",
	"went with someone else", "went with another", "found another",
	"changed my mind", "not for me",
}

func classifyReply(content string) string {
	text := strings.ToLower(content)
	for _, p := range optOutPhrases {
		if strings.Contains(text, p) {
			return ResultOptedOut
		}
	}
	for _, p := range declinePhrases {
		if strings.Contains(text, p) {
			return ResultEngagedNegative
		}
	}
	return ResultEngagedPositive
}
