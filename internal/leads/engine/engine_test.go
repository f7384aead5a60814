package engine

import (
	"context"
	"errors"
	"testing"
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
)

// testNow anchors every scenario: Tuesday 15:00 UTC, 10:00 local in
// US_EAST, well inside allowed hours.
var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	leads         map[uuid.UUID]domain.Lead
	comms         map[uuid.UUID][]domain.Communication
	appts         map[uuid.UUID][]domain.Appointment
	calls         map[uuid.UUID]*domain.CallOutcome
	overdue       []repository.OverdueLead
	nextReview    map[uuid.UUID]time.Time
	lastContacted map[uuid.UUID]time.Time
	added         []repository.CreateCommunicationParams
	revoked       []domain.Channel
	commsErr      error
	leaseHeld     bool
	leaseAcquired int
	leaseReleased int
}

func newStore(leads ...domain.Lead) *fakeStore {
	s := &fakeStore{
		leads:         map[uuid.UUID]domain.Lead{},
		comms:         map[uuid.UUID][]domain.Communication{},
		appts:         map[uuid.UUID][]domain.Appointment{},
		calls:         map[uuid.UUID]*domain.CallOutcome{},
		nextReview:    map[uuid.UUID]time.Time{},
		lastContacted: map[uuid.UUID]time.Time{},
	}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *fakeStore) SelectDueLeads(_ context.Context, _ time.Time, _ time.Duration, limit int) ([]domain.Lead, error) {
	out := []domain.Lead{}
	for _, l := range s.leads {
		if len(out) == limit {
			break
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *fakeStore) AcquireLease(_ context.Context, _ uuid.UUID, _, _ time.Time) (bool, error) {
	s.leaseAcquired++
	return !s.leaseHeld, nil
}

func (s *fakeStore) ReleaseLease(_ context.Context, _ uuid.UUID) error {
	s.leaseReleased++
	return nil
}

func (s *fakeStore) UpdateNextReview(_ context.Context, id uuid.UUID, at time.Time) error {
	s.nextReview[id] = at
	return nil
}

func (s *fakeStore) SetLastContacted(_ context.Context, id uuid.UUID, at time.Time) error {
	s.lastContacted[id] = at
	return nil
}

func (s *fakeStore) AddCommunication(_ context.Context, params repository.CreateCommunicationParams) (domain.Communication, error) {
	s.added = append(s.added, params)
	return domain.Communication{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		Direction: params.Direction,
		Channel:   params.Channel,
		Content:   params.Content,
		CreatedAt: time.Now(),
	}, nil
}

func (s *fakeStore) ListRecentCommunications(_ context.Context, id uuid.UUID, _ int) ([]domain.Communication, error) {
	if s.commsErr != nil {
		return nil, s.commsErr
	}
	return s.comms[id], nil
}

func (s *fakeStore) ListAppointments(_ context.Context, id uuid.UUID) ([]domain.Appointment, error) {
	return s.appts[id], nil
}

func (s *fakeStore) LatestCallOutcome(_ context.Context, id uuid.UUID) (*domain.CallOutcome, error) {
	return s.calls[id], nil
}

func (s *fakeStore) RevokeConsent(_ context.Context, id uuid.UUID, channel domain.Channel) error {
	s.revoked = append(s.revoked, channel)
	return nil
}

func (s *fakeStore) ListOverdue(_ context.Context, _ time.Time, _ time.Duration) ([]repository.OverdueLead, error) {
	return s.overdue, nil
}

type fakeOracle struct {
	proposal domain.ProposedAction
	err      error
	calls    int
}

func (f *fakeOracle) Propose(_ context.Context, _ oracle.Request) (domain.ProposedAction, error) {
	f.calls++
	return f.proposal, f.err
}

type fakeSender struct {
	channel domain.Channel
	err     error
	sent    []string
}

func (f *fakeSender) Channel() domain.Channel { return f.channel }

func (f *fakeSender) Send(_ context.Context, _ domain.Lead, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

type fakeArmer struct {
	armed int
}

func (f *fakeArmer) Arm(_ context.Context, _, _ uuid.UUID, _ domain.Channel, _ time.Time) error {
	f.armed++
	return nil
}

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *captureBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) named(name string) []events.Event {
	out := []events.Event{}
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *fakeStore
	oracle *fakeOracle
	sender *fakeSender
	armer  *fakeArmer
	bus    *captureBus
	now    time.Time
}

func newHarness(t *testing.T, toggles config.AgentToggles, lead domain.Lead, proposal domain.ProposedAction) *harness {
	t.Helper()
	store := newStore(lead)
	o := &fakeOracle{proposal: proposal}
	sender := &fakeSender{channel: domain.ChannelSMS}
	armer := &fakeArmer{}
	bus := &captureBus{}

	eng := New(store, o, channels.NewRegistry(sender), armer,
		health.NewAnalyzer(health.NewKeywordClassifier()), guard.NewValidator(),
		bus, toggles, logger.New("test"))
	eng.clock = func() time.Time { return testNow }

	return &harness{engine: eng, store: store, oracle: o, sender: sender, armer: armer, bus: bus, now: testNow}
}

func allToggles() config.AgentToggles {
	return config.AgentToggles{Enabled: true, RolloutPercent: 100}
}

// dormantLead is consented, autonomous and long silent, so the cooldown
// rule never interferes with the behavior under test.
func dormantLead() domain.Lead {
	return domain.Lead{
		ID:         uuid.New(),
		FirstName:  "Sam",
		LastName:   "Porter",
		Phone:      "+12125550123",
		Region:     "US_EAST",
		Stage:      domain.StageNurturing,
		Consent:    domain.Consent{SMS: true},
		Autonomous: true,
		CreatedAt:  testNow.Add(-100 * time.Hour),
	}
}

func sendProposal() domain.ProposedAction {
	return domain.ProposedAction{
		Type:       domain.ActionSendMessage,
		Channel:    domain.ChannelSMS,
		Message:    "Hi Sam, still happy to help when you are ready. Any questions so far?",
		Confidence: 0.8,
		Reason:     "re-engage after silence",
	}
}

func TestDisabledEngineDoesNothing(t *testing.T) {
	h := newHarness(t, config.AgentToggles{Enabled: false}, dormantLead(), sendProposal())

	processed, failed, err := h.engine.RunCycle(context.Background(), 50)
	if err != nil || processed != 0 || failed != 0 {
		t.Fatalf("got processed=%d failed=%d err=%v", processed, failed, err)
	}
	if h.oracle.calls != 0 {
		t.Error("oracle consulted while disabled")
	}
}

func TestSendPath(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(h.sender.sent))
	}
	if len(h.store.added) != 1 || h.store.added[0].Direction != domain.DirectionOutbound {
		t.Fatalf("outbound communication not recorded: %+v", h.store.added)
	}
	if _, ok := h.store.lastContacted[lead.ID]; !ok {
		t.Error("last contacted not stamped")
	}
	if h.armer.armed != 1 {
		t.Errorf("outcome tracker armed %d times, want 1", h.armer.armed)
	}
	got := h.bus.named(events.MessageSent{}.EventName())
	if len(got) != 1 {
		t.Fatalf("MessageSent events = %d, want 1", len(got))
	}
	if e := got[0].(events.MessageSent); e.DryRun || e.CommunicationID == uuid.Nil {
		t.Errorf("delivered send event = %+v", e)
	}
	// 100h silent with no replies is a dead lead: next review a week out.
	want := h.now.Add(168 * time.Hour)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
	if h.store.leaseAcquired != 1 || h.store.leaseReleased != 1 {
		t.Errorf("lease acquired=%d released=%d, want 1/1", h.store.leaseAcquired, h.store.leaseReleased)
	}
}

func TestLeaseContentionSkipsLead(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.store.leaseHeld = true

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.oracle.calls != 0 {
		t.Error("oracle consulted despite lost lease")
	}
	if len(h.sender.sent) != 0 {
		t.Error("message sent despite lost lease")
	}
}

func TestSkipConditions(t *testing.T) {
	base := dormantLead()
	tests := []struct {
		name   string
		mutate func(*domain.Lead)
	}{
		{"terminal stage", func(l *domain.Lead) { l.Stage = domain.StageConverted }},
		{"automation disabled", func(l *domain.Lead) { l.AutomationDisabled = true }},
		{"not autonomous", func(l *domain.Lead) { l.Autonomous = false }},
		{"no consent", func(l *domain.Lead) { l.Consent = domain.Consent{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := base
			lead.ID = uuid.New()
			tt.mutate(&lead)
			h := newHarness(t, allToggles(), lead, sendProposal())

			if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
				t.Fatalf("process: %v", err)
			}
			if h.oracle.calls != 0 {
				t.Error("oracle consulted for skipped lead")
			}
		})
	}
}

func TestReactiveReviewAnswersConvertedLead(t *testing.T) {
	lead := dormantLead()
	lead.Stage = domain.StageConverted
	proposal := sendProposal()
	proposal.Message = "Thanks for the kind words, Sam. Your paperwork is complete and nothing else is needed from you."
	h := newHarness(t, allToggles(), lead, proposal)
	// The lead replied after our last message, so cooldown is waived.
	h.store.comms[lead.ID] = []domain.Communication{
		{LeadID: lead.ID, Direction: domain.DirectionInbound, Channel: domain.ChannelSMS,
			Content: "Quick question about my paperwork", CreatedAt: h.now.Add(-1 * time.Hour)},
		{LeadID: lead.ID, Direction: domain.DirectionOutbound, Channel: domain.ChannelSMS,
			Content: "Congratulations on closing!", CreatedAt: h.now.Add(-2 * time.Hour)},
	}

	if err := h.engine.ProcessReactive(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.oracle.calls != 1 {
		t.Fatalf("oracle calls = %d, want 1", h.oracle.calls)
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(h.sender.sent))
	}
}

func TestReactiveReviewStillBlocksRebooking(t *testing.T) {
	lead := dormantLead()
	lead.Stage = domain.StageConverted
	h := newHarness(t, allToggles(), lead, domain.ProposedAction{
		Type:       domain.ActionSendBookingLink,
		Channel:    domain.ChannelSMS,
		Message:    "You can grab another slot here: https://cal.example/advisor",
		Confidence: 0.7,
		Reason:     "lead replied",
	})
	h.store.comms[lead.ID] = []domain.Communication{
		{LeadID: lead.ID, Direction: domain.DirectionInbound, Channel: domain.ChannelSMS,
			Content: "Thanks again", CreatedAt: h.now.Add(-1 * time.Hour)},
	}

	if err := h.engine.ProcessReactive(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatal("booking link sent to converted lead")
	}
	want := h.now.Add(BackoffValidation)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestOracleFailureBacksOffTwoHours(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.oracle.err = errors.New("model timeout")

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := h.now.Add(BackoffError)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestStoreFailureDefersReview(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.store.commsErr = errors.New("connection reset")

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err == nil {
		t.Fatal("expected error from failed history load")
	}
	want := h.now.Add(BackoffError)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestQuietHoursReschedulesToLocalMorning(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	// 03:00 UTC is 22:00 in US_EAST (EST), inside quiet hours.
	h.engine.clock = func() time.Time { return time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC) }

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatal("message sent during quiet hours")
	}
	// Next 8AM EST is 13:00 UTC the same day.
	want := time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestValidationFailureBacksOffOneHour(t *testing.T) {
	lead := dormantLead()
	proposal := sendProposal()
	proposal.Message = "" // empty content is a hard violation
	h := newHarness(t, allToggles(), lead, proposal)

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatal("invalid message was sent")
	}
	want := h.now.Add(BackoffValidation)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestRepetitionBacksOffSixHours(t *testing.T) {
	lead := dormantLead()
	proposal := sendProposal()
	h := newHarness(t, allToggles(), lead, proposal)
	h.store.comms[lead.ID] = []domain.Communication{
		{
			LeadID:    lead.ID,
			Direction: domain.DirectionOutbound,
			Channel:   domain.ChannelSMS,
			Content:   proposal.Message,
			CreatedAt: h.now.Add(-200 * time.Hour),
		},
	}

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatal("repetitive message was sent")
	}
	want := h.now.Add(BackoffRepetition)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestQuietHoursTakePrecedenceOverRepetition(t *testing.T) {
	lead := dormantLead()
	proposal := sendProposal()
	h := newHarness(t, allToggles(), lead, proposal)
	h.store.comms[lead.ID] = []domain.Communication{
		{
			LeadID:    lead.ID,
			Direction: domain.DirectionOutbound,
			Channel:   domain.ChannelSMS,
			Content:   proposal.Message,
			CreatedAt: h.now.Add(-200 * time.Hour),
		},
	}
	// 03:00 UTC is 22:00 in US_EAST. A duplicate proposed during quiet
	// hours waits for the lead's morning, not the repetition backoff.
	quiet := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	h.engine.clock = func() time.Time { return quiet }

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatal("message sent during quiet hours")
	}
	want := time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestEscalationPublishesAndParks(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, domain.ProposedAction{
		Type:       domain.ActionEscalate,
		Confidence: 0.9,
		Reason:     "lead asked to speak to a person",
	})

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	raised := h.bus.named(events.EscalationRaised{}.EventName())
	if len(raised) != 1 {
		t.Fatalf("EscalationRaised events = %d, want 1", len(raised))
	}
	if e := raised[0].(events.EscalationRaised); e.LeadID != lead.ID {
		t.Errorf("event lead %v, want %v", e.LeadID, lead.ID)
	}
	want := h.now.Add(BackoffEscalate)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestWaitUsesOracleDuration(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, domain.ProposedAction{
		Type:       domain.ActionWait,
		Wait:       3 * time.Hour,
		Confidence: 0.9,
		Reason:     "lead said they are traveling",
	})

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := h.now.Add(3 * time.Hour)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestWaitFallsBackToSignalInterval(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, domain.ProposedAction{
		Type:       domain.ActionWait,
		Confidence: 0.9,
		Reason:     "nothing new to say",
	})

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	// dead lead: 168h analyzer interval
	want := h.now.Add(168 * time.Hour)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestDeliveryFailureBacksOff(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.sender.err = errors.New("gateway 503")

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.store.added) != 0 {
		t.Error("failed send recorded as communication")
	}
	if h.armer.armed != 0 {
		t.Error("outcome armed for failed send")
	}
	want := h.now.Add(BackoffError)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestConsentRevokedDuringDelivery(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.sender.err = channels.ErrConsentRevoked

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.store.revoked) != 1 || h.store.revoked[0] != domain.ChannelSMS {
		t.Fatalf("consent not revoked: %v", h.store.revoked)
	}
	if got := h.bus.named(events.ConsentRevoked{}.EventName()); len(got) != 1 {
		t.Errorf("ConsentRevoked events = %d, want 1", len(got))
	}
}

func TestDryRunSkipsDelivery(t *testing.T) {
	lead := dormantLead()
	toggles := allToggles()
	toggles.DryRun = true
	h := newHarness(t, toggles, lead, sendProposal())

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Error("dry run delivered a message")
	}
	if len(h.store.added) != 0 {
		t.Error("dry run recorded a communication")
	}
	sent := h.bus.named(events.MessageSent{}.EventName())
	if len(sent) != 1 {
		t.Fatalf("MessageSent events = %d, want 1", len(sent))
	}
	if e := sent[0].(events.MessageSent); !e.DryRun || e.CommunicationID != uuid.Nil {
		t.Errorf("dry run event = %+v, want DryRun with zero communication id", e)
	}
	if _, ok := h.store.nextReview[lead.ID]; !ok {
		t.Error("dry run did not schedule next review")
	}
}

func TestRolloutIsDeterministic(t *testing.T) {
	toggles := allToggles()
	toggles.RolloutPercent = 50
	lead := dormantLead()
	h := newHarness(t, toggles, lead, sendProposal())

	first := h.engine.inRollout(lead.ID)
	for i := 0; i < 10; i++ {
		if h.engine.inRollout(lead.ID) != first {
			t.Fatal("rollout membership flipped between calls")
		}
	}

	// With enough leads both buckets must be populated.
	in, out := 0, 0
	for i := 0; i < 200; i++ {
		if h.engine.inRollout(uuid.New()) {
			in++
		} else {
			out++
		}
	}
	if in == 0 || out == 0 {
		t.Errorf("rollout split degenerate: in=%d out=%d", in, out)
	}
}

func TestOutOfRolloutLeadIsParked(t *testing.T) {
	toggles := allToggles()
	toggles.RolloutPercent = 0
	lead := dormantLead()
	h := newHarness(t, toggles, lead, sendProposal())

	if err := h.engine.ProcessLead(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.oracle.calls != 0 {
		t.Error("oracle consulted for out-of-rollout lead")
	}
	want := h.now.Add(24 * time.Hour)
	if got := h.store.nextReview[lead.ID]; !got.Equal(want) {
		t.Errorf("next review %v, want %v", got, want)
	}
}

func TestOutOfRolloutReactiveReviewIsDropped(t *testing.T) {
	toggles := allToggles()
	toggles.RolloutPercent = 0
	lead := dormantLead()
	h := newHarness(t, toggles, lead, sendProposal())

	if err := h.engine.ProcessReactive(context.Background(), lead.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.oracle.calls != 0 {
		t.Error("oracle consulted for out-of-rollout lead")
	}
	// Reactive reviews come from the task queue, not the due query, so
	// there is nothing to park.
	if _, ok := h.store.nextReview[lead.ID]; ok {
		t.Error("reactive review parked an out-of-rollout lead")
	}
}

func TestRunCycleProcessesAllDueLeads(t *testing.T) {
	first := dormantLead()
	second := dormantLead()
	h := newHarness(t, allToggles(), first, sendProposal())
	h.store.leads[second.ID] = second

	processed, failed, err := h.engine.RunCycle(context.Background(), 50)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if processed != 2 || failed != 0 {
		t.Errorf("processed=%d failed=%d, want 2/0", processed, failed)
	}
	if len(h.sender.sent) != 2 {
		t.Errorf("sends = %d, want 2", len(h.sender.sent))
	}
}

func TestRunCycleRespectsBatchCap(t *testing.T) {
	h := newHarness(t, allToggles(), dormantLead(), sendProposal())
	for i := 0; i < 5; i++ {
		extra := dormantLead()
		h.store.leads[extra.ID] = extra
	}

	processed, failed, err := h.engine.RunCycle(context.Background(), 3)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if processed+failed != 3 {
		t.Errorf("processed=%d failed=%d, want 3 total", processed, failed)
	}
}

func TestSweepOverduePublishesAlert(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())
	h.store.overdue = []repository.OverdueLead{
		{ID: lead.ID, FirstName: "Sam", LastName: "Porter", NextReviewAt: h.now.Add(-30 * time.Hour)},
	}

	if err := h.engine.SweepOverdue(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got := h.bus.named(events.LeadsOverdue{}.EventName())
	if len(got) != 1 {
		t.Fatalf("LeadsOverdue events = %d, want 1", len(got))
	}
	if e := got[0].(events.LeadsOverdue); e.Count != 1 {
		t.Errorf("count = %d, want 1", e.Count)
	}
}

func TestSweepWithNothingOverdueStaysQuiet(t *testing.T) {
	lead := dormantLead()
	h := newHarness(t, allToggles(), lead, sendProposal())

	if err := h.engine.SweepOverdue(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(h.bus.published) != 0 {
		t.Errorf("unexpected events: %d", len(h.bus.published))
	}
}
