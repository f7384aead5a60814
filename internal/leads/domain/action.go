package domain

import "time"

// ActionType enumerates what the decision oracle can propose.
type ActionType string

const (
	ActionSendMessage     ActionType = "send_message"
	ActionSendBookingLink ActionType = "send_templated_link"
	ActionWait            ActionType = "wait"
	ActionEscalate        ActionType = "escalate"
)

// ProposedAction is the oracle's advisory output. It is untrusted input:
// nothing here is executed without passing the validator first.
type ProposedAction struct {
	Type       ActionType
	Channel    Channel
	Message    string
	Wait       time.Duration // only meaningful for ActionWait; zero = use analyzer interval
	Confidence float64       // 0-1
	Reason     string
}

// IsSend reports whether the action delivers a message to the lead.
func (a ProposedAction) IsSend() bool {
	return a.Type == ActionSendMessage || a.Type == ActionSendBookingLink
}
