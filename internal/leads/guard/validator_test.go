package guard

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/leads/domain"
)

// 15:00 UTC is 10:00 in US_EAST (winter), comfortably inside contact hours.
var noonNow = time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)

func consentedLead() domain.Lead {
	return domain.Lead{
		ID:        uuid.New(),
		Region:    "US_EAST",
		Stage:     domain.StageNurturing,
		Consent:   domain.Consent{SMS: true, Email: true},
		CreatedAt: noonNow.Add(-30 * 24 * time.Hour),
	}
}

func sendAction(msg string) domain.ProposedAction {
	return domain.ProposedAction{
		Type:       domain.ActionSendMessage,
		Channel:    domain.ChannelSMS,
		Message:    msg,
		Confidence: 0.9,
	}
}

func outboundAt(hoursAgo float64) domain.Communication {
	return domain.Communication{
		Direction: domain.DirectionOutbound,
		Content:   "earlier message",
		CreatedAt: noonNow.Add(-time.Duration(hoursAgo * float64(time.Hour))),
	}
}

func inboundAt(hoursAgo float64) domain.Communication {
	return domain.Communication{
		Direction: domain.DirectionInbound,
		Content:   "a reply",
		CreatedAt: noonNow.Add(-time.Duration(hoursAgo * float64(time.Hour))),
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	in := Input{
		Action:         sendAction("Hi, any questions about your options?"),
		Lead:           consentedLead(),
		Communications: []domain.Communication{outboundAt(2)},
		Now:            noonNow,
	}

	v := NewValidator()
	first := v.Validate(in)
	second := v.Validate(in)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated validation differed: %+v vs %+v", first, second)
	}
}

func TestConsentRule(t *testing.T) {
	lead := consentedLead()
	lead.Consent = domain.Consent{Email: true}

	res := NewValidator().Validate(Input{
		Action: sendAction("hello"),
		Lead:   lead,
		Now:    noonNow,
	})
	if !res.Has(CodeConsent) {
		t.Error("send on a non-consented channel should be rejected")
	}

	// Wait and escalate never need consent.
	for _, typ := range []domain.ActionType{domain.ActionWait, domain.ActionEscalate} {
		res := NewValidator().Validate(Input{
			Action: domain.ProposedAction{Type: typ},
			Lead:   lead,
			Now:    noonNow,
		})
		if !res.OK() {
			t.Errorf("%s should pass without consent, got %v", typ, res.Reasons())
		}
	}
}

func TestQuietHoursRule(t *testing.T) {
	// 03:00 UTC is 22:00 previous evening in US_EAST.
	night := time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC)

	res := NewValidator().Validate(Input{
		Action: sendAction("hello"),
		Lead:   consentedLead(),
		Now:    night,
	})
	if !res.Has(CodeQuietHours) {
		t.Error("send outside [8,21) local should be rejected")
	}

	for _, typ := range []domain.ActionType{domain.ActionWait, domain.ActionEscalate} {
		res := NewValidator().Validate(Input{
			Action: domain.ProposedAction{Type: typ},
			Lead:   consentedLead(),
			Now:    night,
		})
		if !res.OK() {
			t.Errorf("%s should be exempt from quiet hours, got %v", typ, res.Reasons())
		}
	}
}

func TestCooldownRule(t *testing.T) {
	// Broadcast mode: contacted 2h ago, no reply since.
	res := NewValidator().Validate(Input{
		Action:         sendAction("hello again"),
		Lead:           consentedLead(),
		Communications: []domain.Communication{outboundAt(2)},
		Now:            noonNow,
	})
	if !res.Has(CodeCooldown) {
		t.Error("un-replied send 2h after last outbound should hit the cooldown")
	}

	// Conversational mode: lead replied after the last outbound.
	res = NewValidator().Validate(Input{
		Action:         sendAction("hello again"),
		Lead:           consentedLead(),
		Communications: []domain.Communication{inboundAt(1), outboundAt(2)},
		Now:            noonNow,
	})
	if res.Has(CodeCooldown) {
		t.Error("reply after last outbound should waive the cooldown")
	}

	// Cooldown elapsed.
	res = NewValidator().Validate(Input{
		Action:         sendAction("hello again"),
		Lead:           consentedLead(),
		Communications: []domain.Communication{outboundAt(5)},
		Now:            noonNow,
	})
	if res.Has(CodeCooldown) {
		t.Error("send 5h after last outbound should pass the cooldown")
	}
}

func TestDoubleBookingRule(t *testing.T) {
	appts := []domain.Appointment{{
		Status:    domain.AppointmentConfirmed,
		StartTime: noonNow.Add(48 * time.Hour),
	}}

	res := NewValidator().Validate(Input{
		Action: domain.ProposedAction{
			Type:    domain.ActionSendBookingLink,
			Channel: domain.ChannelSMS,
			Message: "Grab a time here: https://example.com/book",
		},
		Lead:         consentedLead(),
		Appointments: appts,
		Now:          noonNow,
	})
	if !res.Has(CodeDoubleBooking) {
		t.Error("booking link with an active appointment should be rejected")
	}

	// Completed appointments do not block.
	appts[0].Status = domain.AppointmentCompleted
	res = NewValidator().Validate(Input{
		Action: domain.ProposedAction{
			Type:    domain.ActionSendBookingLink,
			Channel: domain.ChannelSMS,
			Message: "Grab a time here: https://example.com/book",
		},
		Lead:         consentedLead(),
		Appointments: appts,
		Now:          noonNow,
	})
	if res.Has(CodeDoubleBooking) {
		t.Error("completed appointment should not block rebooking")
	}
}

func TestTerminalStageRule(t *testing.T) {
	lead := consentedLead()
	lead.Stage = domain.StageConverted

	tests := []struct {
		name       string
		action     domain.ProposedAction
		wantReject bool
	}{
		{"booking link rejected", domain.ProposedAction{Type: domain.ActionSendBookingLink, Channel: domain.ChannelSMS, Message: "book here"}, true},
		{"re-application message rejected", sendAction("Ready to apply for your next loan?"), true},
		{"plain support message allowed", sendAction("Congratulations again! Reach out if you need anything."), false},
	}

	for _, tc := range tests {
		res := NewValidator().Validate(Input{Action: tc.action, Lead: lead, Now: noonNow})
		if got := res.Has(CodeTerminalStage); got != tc.wantReject {
			t.Errorf("%s: terminal-stage rejection = %v, want %v (%v)", tc.name, got, tc.wantReject, res.Reasons())
		}
	}
}

func TestContentRule(t *testing.T) {
	res := NewValidator().Validate(Input{
		Action: sendAction("   \n\t "),
		Lead:   consentedLead(),
		Now:    noonNow,
	})
	if !res.Has(CodeEmptyMessage) {
		t.Error("whitespace-only message should be rejected")
	}
}

func TestPromiseRule(t *testing.T) {
	tests := []struct {
		msg        string
		wantReject bool
	}{
		{"Greg will call you at 5pm", true},
		{"Our advisor is gonna call you around 9 tomorrow", true},
		{"Thanks for confirming your booking for 5pm", false},
		{"We'll be in touch soon", false},
		{"Feel free to call us anytime", false},
	}

	for _, tc := range tests {
		res := NewValidator().Validate(Input{
			Action: sendAction(tc.msg),
			Lead:   consentedLead(),
			Now:    noonNow,
		})
		if got := res.Has(CodePromise); got != tc.wantReject {
			t.Errorf("promise rule on %q = %v, want %v", tc.msg, got, tc.wantReject)
		}
	}
}

func TestSoftRulesWarnWithoutBlocking(t *testing.T) {
	action := sendAction("Just checking in. Act now, this is a limited time rate!")
	action.Confidence = 0.2

	res := NewValidator().Validate(Input{
		Action: action,
		Lead:   consentedLead(),
		Now:    noonNow,
	})
	if !res.OK() {
		t.Fatalf("soft rules must not block, got violations: %v", res.Reasons())
	}
	if len(res.Warnings) < 3 {
		t.Errorf("expected warnings for confidence, stock phrase and pressure language, got %v", res.Warnings)
	}
}
