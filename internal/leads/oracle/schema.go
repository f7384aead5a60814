package oracle

import "google.golang.org/genai"

// decisionSchema constrains the oracle to a structured decision. The enum
// values must stay in sync with domain.ActionType and domain.Channel.
var decisionSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"action": {
			Type:        "STRING",
			Description: "What to do for this lead right now",
			Enum:        []string{"send_message", "send_templated_link", "wait", "escalate"},
		},
		"channel": {
			Type:        "STRING",
			Description: "Delivery channel for send actions",
			Enum:        []string{"sms", "email"},
		},
		"message": {
			Type:        "STRING",
			Description: "Message body for send actions. Empty otherwise.",
		},
		"waitHours": {
			Type:        "NUMBER",
			Description: "For wait actions: hours before the next review. 0 means use the engagement-based default.",
		},
		"confidence": {
			Type:        "NUMBER",
			Description: "Confidence in this decision, 0 to 1",
		},
		"reason": {
			Type:        "STRING",
			Description: "One-sentence rationale",
		},
	},
	Required: []string{"action", "confidence", "reason"},
}
