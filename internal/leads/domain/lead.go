package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies an outbound contact channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelCall  Channel = "call"
)

// Consent holds per-channel contact permissions.
type Consent struct {
	SMS   bool
	Email bool
	Call  bool
}

// Allows reports whether the lead consented to the given channel.
func (c Consent) Allows(channel Channel) bool {
	switch channel {
	case ChannelSMS:
		return c.SMS
	case ChannelEmail:
		return c.Email
	case ChannelCall:
		return c.Call
	default:
		return false
	}
}

// AnyChannel reports whether at least one contact channel is consented.
func (c Consent) AnyChannel() bool {
	return c.SMS || c.Email || c.Call
}

// Lead is the read-only snapshot the decision core operates on.
type Lead struct {
	ID                     uuid.UUID
	FirstName              string
	LastName               string
	Phone                  string
	Email                  *string
	Region                 string
	Stage                  Stage
	Consent                Consent
	Autonomous             bool // flagged for autonomous management
	AutomationDisabled     bool
	Attributes             map[string]string // free-form loan/purchase details
	LastContactedAt        *time.Time
	NextReviewAt           *time.Time
	ApplicationStartedAt   *time.Time
	ApplicationCompletedAt *time.Time
	LockedUntil            *time.Time // processing lease, CAS-updated
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Attribute returns a value from the attribute bag, empty when absent.
func (l Lead) Attribute(key string) string {
	if l.Attributes == nil {
		return ""
	}
	return l.Attributes[key]
}

// HoursSinceContact is the time since the later of lastContactedAt and
// createdAt. A never-contacted lead ages from creation.
func (l Lead) HoursSinceContact(now time.Time) float64 {
	ref := l.CreatedAt
	if l.LastContactedAt != nil && l.LastContactedAt.After(ref) {
		ref = *l.LastContactedAt
	}
	return now.Sub(ref).Hours()
}

// Direction distinguishes inbound replies from outbound sends.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Communication is an immutable, append-only contact record.
type Communication struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Direction Direction
	Channel   Channel
	Content   string
	IsManual  bool
	SentBy    *uuid.UUID
	CreatedAt time.Time
}

// AppointmentStatus is the scheduling state of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Appointment is a scheduled consultation with an advisor.
type Appointment struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Status    AppointmentStatus
	StartTime time.Time
	AdvisorID uuid.UUID
	CreatedAt time.Time
}

// IsActive reports whether the appointment is upcoming and not cancelled.
// The validator treats an active appointment as a blocking condition
// against rebooking.
func (a Appointment) IsActive(now time.Time) bool {
	if a.Status != AppointmentScheduled && a.Status != AppointmentConfirmed {
		return false
	}
	return a.StartTime.After(now)
}

// HasActiveAppointment reports whether any appointment in the slice is active.
func HasActiveAppointment(appointments []Appointment, now time.Time) bool {
	for _, a := range appointments {
		if a.IsActive(now) {
			return true
		}
	}
	return false
}

// CallOutcome records the result of a completed advisor call.
type CallOutcome struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	Outcome        string // e.g. "ready_to_proceed", "callback_requested", "no_answer"
	Notes          *string
	ReadyToProceed bool
	OccurredAt     time.Time
}
