package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/health"
)

func TestToProposal(t *testing.T) {
	tests := []struct {
		name    string
		in      decision
		want    domain.ProposedAction
		wantErr bool
	}{
		{
			name: "send message",
			in:   decision{Action: "send_message", Channel: "sms", Message: " Hi there ", Confidence: 0.8, Reason: "follow up"},
			want: domain.ProposedAction{Type: domain.ActionSendMessage, Channel: domain.ChannelSMS, Message: "Hi there", Confidence: 0.8, Reason: "follow up"},
		},
		{
			name: "wait with hours",
			in:   decision{Action: "wait", WaitHours: 2.5, Confidence: 0.9, Reason: "too soon"},
			want: domain.ProposedAction{Type: domain.ActionWait, Wait: 150 * time.Minute, Confidence: 0.9, Reason: "too soon"},
		},
		{
			name: "wait without hours leaves zero duration",
			in:   decision{Action: "wait", Confidence: 0.9, Reason: "too soon"},
			want: domain.ProposedAction{Type: domain.ActionWait, Confidence: 0.9, Reason: "too soon"},
		},
		{
			name: "escalate ignores channel",
			in:   decision{Action: "escalate", Channel: "sms", Confidence: 0.7, Reason: "asked for human"},
			want: domain.ProposedAction{Type: domain.ActionEscalate, Confidence: 0.7, Reason: "asked for human"},
		},
		{
			name:    "unknown action rejected",
			in:      decision{Action: "phone_blast", Confidence: 0.9},
			wantErr: true,
		},
		{
			name:    "send without valid channel rejected",
			in:      decision{Action: "send_message", Channel: "fax", Message: "hi", Confidence: 0.9},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toProposal(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildPromptIncludesConversation(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	leadID := uuid.New()
	req := Request{
		Lead: domain.Lead{
			ID:        leadID,
			FirstName: "Dana",
			LastName:  "Reyes",
			Stage:     domain.StageContacted,
			Consent:   domain.Consent{SMS: true},
			CreatedAt: now.Add(-48 * time.Hour),
		},
		Signal: health.Signal{Temperature: health.TemperatureWarm, Trend: health.TrendStable},
		Communications: []domain.Communication{
			{LeadID: leadID, Direction: domain.DirectionInbound, Channel: domain.ChannelSMS, Content: "what rates do you offer", CreatedAt: now.Add(-time.Hour)},
		},
		Now: now,
	}

	prompt := buildPrompt(req)
	for _, want := range []string{"Dana Reyes", "warm", "what rates do you offer", "sms=true"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptCapsHistory(t *testing.T) {
	now := time.Now()
	comms := make([]domain.Communication, 15)
	for i := range comms {
		comms[i] = domain.Communication{
			Direction: domain.DirectionOutbound,
			Channel:   domain.ChannelSMS,
			Content:   "msg",
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	prompt := buildPrompt(Request{Lead: domain.Lead{CreatedAt: now}, Communications: comms, Now: now})
	if got := strings.Count(prompt, "[outbound"); got != 10 {
		t.Errorf("expected 10 history lines, got %d", got)
	}
}
