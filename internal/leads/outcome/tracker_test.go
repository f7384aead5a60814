package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/logger"
)

type fakeStore struct {
	records   map[uuid.UUID]repository.OutcomeRecord
	comms     []domain.Communication
	appts     []domain.Appointment
	finalized map[uuid.UUID]string
	latencies map[uuid.UUID]*time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   map[uuid.UUID]repository.OutcomeRecord{},
		finalized: map[uuid.UUID]string{},
		latencies: map[uuid.UUID]*time.Duration{},
	}
}

func (f *fakeStore) CreateOutcomePending(_ context.Context, params repository.CreateOutcomeParams) (repository.OutcomeRecord, error) {
	rec := repository.OutcomeRecord{
		ID:              uuid.New(),
		LeadID:          params.LeadID,
		CommunicationID: params.CommunicationID,
		Channel:         params.Channel,
		Status:          repository.OutcomePending,
		SentAt:          params.SentAt,
		EvaluateAfter:   params.EvaluateAfter,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) GetOutcome(_ context.Context, id uuid.UUID) (repository.OutcomeRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return repository.OutcomeRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) FinalizeOutcome(_ context.Context, id uuid.UUID, result string, latency *time.Duration, _ time.Time) error {
	rec := f.records[id]
	rec.Status = repository.OutcomeEvaluated
	f.records[id] = rec
	f.finalized[id] = result
	f.latencies[id] = latency
	return nil
}

func (f *fakeStore) CommunicationsSince(_ context.Context, _ uuid.UUID, since time.Time) ([]domain.Communication, error) {
	out := []domain.Communication{}
	for _, c := range f.comms {
		if c.CreatedAt.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) AppointmentsSince(_ context.Context, _ uuid.UUID, since time.Time) ([]domain.Appointment, error) {
	out := []domain.Appointment{}
	for _, a := range f.appts {
		if a.CreatedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
	at       []time.Time
}

func (f *fakeEnqueuer) EnqueueOutcomeEvaluation(_ context.Context, id uuid.UUID, at time.Time) (err error) {
	f.enqueued = append(f.enqueued, id)
	f.at = append(f.at, at)
	return nil
}

func TestArmPersistsAndEnqueues(t *testing.T) {
	store := newFakeStore()
	queue := &fakeEnqueuer{}
	tracker := NewTracker(store, queue, logger.New("test"))

	sentAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	leadID, commID := uuid.New(), uuid.New()

	if err := tracker.Arm(context.Background(), leadID, commID, domain.ChannelSMS, sentAt); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(queue.enqueued))
	}
	wantAt := sentAt.Add(EvaluationWindow)
	if !queue.at[0].Equal(wantAt) {
		t.Errorf("evaluation scheduled at %v, want %v", queue.at[0], wantAt)
	}
	for _, rec := range store.records {
		if !rec.EvaluateAfter.Equal(wantAt) {
			t.Errorf("persisted evaluate_after %v, want %v", rec.EvaluateAfter, wantAt)
		}
	}
}

func TestEvaluateOutcomes(t *testing.T) {
	sentAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	leadID := uuid.New()

	inbound := func(content string, after time.Duration) domain.Communication {
		return domain.Communication{
			LeadID:    leadID,
			Direction: domain.DirectionInbound,
			Channel:   domain.ChannelSMS,
			Content:   content,
			CreatedAt: sentAt.Add(after),
		}
	}

	tests := []struct {
		name        string
		comms       []domain.Communication
		appts       []domain.Appointment
		want        string
		wantLatency *time.Duration
	}{
		{
			name:  "appointment wins over reply",
			comms: []domain.Communication{inbound("stop texting me", time.Hour)},
			appts: []domain.Appointment{{LeadID: leadID, Status: domain.AppointmentScheduled, CreatedAt: sentAt.Add(2 * time.Hour)}},
			want:  ResultBooked,
		},
		{
			name:        "stop phrase is opt out",
			comms:       []domain.Communication{inbound("Please unsubscribe me from these", 30 * time.Minute)},
			want:        ResultOptedOut,
			wantLatency: durationPtr(30 * time.Minute),
		},
		{
			name:        "decline is engaged negative",
			comms:       []domain.Communication{inbound("We went with someone else, sorry", time.Hour)},
			want:        ResultEngagedNegative,
			wantLatency: durationPtr(time.Hour),
		},
		{
			name:        "question is engaged positive",
			comms:       []domain.Communication{inbound("What documents do I need?", 45 * time.Minute)},
			want:        ResultEngagedPositive,
			wantLatency: durationPtr(45 * time.Minute),
		},
		{
			name:  "own outbound does not count as engagement",
			comms: []domain.Communication{{LeadID: leadID, Direction: domain.DirectionOutbound, Content: "checking in", CreatedAt: sentAt.Add(time.Hour)}},
			want:  ResultGhosted,
		},
		{
			name: "silence is ghosted",
			want: ResultGhosted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.comms = tt.comms
			store.appts = tt.appts
			queue := &fakeEnqueuer{}
			tracker := NewTracker(store, queue, logger.New("test"))

			ctx := context.Background()
			if err := tracker.Arm(ctx, leadID, uuid.New(), domain.ChannelSMS, sentAt); err != nil {
				t.Fatalf("arm: %v", err)
			}
			id := queue.enqueued[0]
			if err := tracker.Evaluate(ctx, id, sentAt.Add(EvaluationWindow)); err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := store.finalized[id]; got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			gotLatency := store.latencies[id]
			if (gotLatency == nil) != (tt.wantLatency == nil) {
				t.Fatalf("latency = %v, want %v", gotLatency, tt.wantLatency)
			}
			if gotLatency != nil && *gotLatency != *tt.wantLatency {
				t.Errorf("latency = %v, want %v", *gotLatency, *tt.wantLatency)
			}
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	queue := &fakeEnqueuer{}
	tracker := NewTracker(store, queue, logger.New("test"))

	sentAt := time.Now().Add(-EvaluationWindow)
	ctx := context.Background()
	if err := tracker.Arm(ctx, uuid.New(), uuid.New(), domain.ChannelEmail, sentAt); err != nil {
		t.Fatalf("arm: %v", err)
	}
	id := queue.enqueued[0]
	if err := tracker.Evaluate(ctx, id, time.Now()); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	first := store.finalized[id]

	// inbound reply arrives late, after evaluation
	store.comms = append(store.comms, domain.Communication{
		Direction: domain.DirectionInbound,
		Content:   "yes please",
		CreatedAt: time.Now(),
	})
	if err := tracker.Evaluate(ctx, id, time.Now()); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if store.finalized[id] != first {
		t.Errorf("result changed on re-evaluation: %q vs %q", store.finalized[id], first)
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
