// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"nurture_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Nurture Engine Events
// =============================================================================

// MessageSent is published after an autonomous outbound message is
// delivered, or would have been when DryRun is set. Dry-run events carry a
// zero CommunicationID because nothing was persisted.
type MessageSent struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	CommunicationID uuid.UUID `json:"communicationId"`
	Channel         string    `json:"channel"`
	DryRun          bool      `json:"dryRun"`
}

func (e MessageSent) EventName() string { return "nurture.message.sent" }

// EscalationRaised is published when a lead needs human attention.
type EscalationRaised struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	LeadName string    `json:"leadName"`
	Reason   string    `json:"reason"`
}

func (e EscalationRaised) EventName() string { return "nurture.escalation.raised" }

// LeadsOverdue is published by the sweep when reviews have slipped too far.
type LeadsOverdue struct {
	BaseEvent
	Count        int           `json:"count"`
	OldestReview time.Time     `json:"oldestReview"`
	LeadIDs      []uuid.UUID   `json:"leadIds"`
	Overdue      time.Duration `json:"overdue"`
}

func (e LeadsOverdue) EventName() string { return "nurture.leads.overdue" }

// =============================================================================
// Inbound Events
// =============================================================================

// InboundReceived is published when a lead replies on any channel.
type InboundReceived struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Channel string    `json:"channel"`
	Content string    `json:"content"`
}

func (e InboundReceived) EventName() string { return "inbound.message.received" }

// ConsentRevoked is published when a lead opts out of a channel. An empty
// channel means all channels.
type ConsentRevoked struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Channel string    `json:"channel"`
	Source  string    `json:"source"` // e.g. "sms_stop", "email_unsubscribe"
}

func (e ConsentRevoked) EventName() string { return "leads.consent.revoked" }
