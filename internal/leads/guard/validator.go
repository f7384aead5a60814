// Package guard validates oracle-proposed actions against hard safety rules
// and soft quality rules before anything is sent. Hard rules encode
// must-never-happen compliance properties; soft rules are quality signals
// that surface in logs without stalling the pipeline. Validation is pure:
// identical inputs at the same instant always produce identical results.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/health"
	"nurture_backend/platform/timezone"
)

// Violation codes for hard-rule failures. The scheduler keys retry policy
// off these.
const (
	CodeConsent       = "consent"
	CodeQuietHours    = "quiet_hours"
	CodeCooldown      = "cooldown"
	CodeDoubleBooking = "double_booking"
	CodeTerminalStage = "terminal_stage"
	CodeEmptyMessage  = "empty_message"
	CodePromise       = "unverifiable_promise"
)

// Quiet-hours window: sends are only allowed when the lead's local hour is
// in [QuietHoursStart, QuietHoursEnd).
const (
	QuietHoursStart = 8
	QuietHoursEnd   = 21
)

// CooldownHours is the minimum gap between outbound messages when the lead
// has not replied since the last one.
const CooldownHours = 4.0

// Violation is a single hard-rule failure.
type Violation struct {
	Code    string
	Message string
}

// Result is the validation outcome. Any violation blocks execution;
// warnings are logged but non-blocking.
type Result struct {
	Violations []Violation
	Warnings   []string
}

// OK reports whether the action may be executed.
func (r Result) OK() bool {
	return len(r.Violations) == 0
}

// Has reports whether a violation with the given code is present.
func (r Result) Has(code string) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Reasons returns the violation messages for logging.
func (r Result) Reasons() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

// Input bundles everything validation reads. No field is mutated.
type Input struct {
	Action         domain.ProposedAction
	Lead           domain.Lead
	Signal         health.Signal
	Communications []domain.Communication // most recent first
	Appointments   []domain.Appointment
	Now            time.Time
}

// Validator applies the guardrail rules.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all hard and soft rules against the proposed action.
func (v *Validator) Validate(in Input) Result {
	var res Result

	if in.Action.IsSend() {
		v.checkConsent(in, &res)
		v.checkQuietHours(in, &res)
		v.checkCooldown(in, &res)
		v.checkContent(in, &res)
		v.checkPromises(in, &res)
		v.softChecks(in, &res)
	}

	v.checkDoubleBooking(in, &res)
	v.checkTerminalStage(in, &res)

	return res
}

func (v *Validator) checkConsent(in Input, res *Result) {
	if !in.Lead.Consent.Allows(in.Action.Channel) {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeConsent,
			Message: fmt.Sprintf("lead has not consented to %s contact", in.Action.Channel),
		})
	}
}

func (v *Validator) checkQuietHours(in Input, res *Result) {
	hour := timezone.LocalHour(in.Lead.Region, in.Now)
	if hour < QuietHoursStart || hour >= QuietHoursEnd {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeQuietHours,
			Message: fmt.Sprintf("local hour %d is outside contact window [%d,%d)", hour, QuietHoursStart, QuietHoursEnd),
		})
	}
}

// checkCooldown enforces the context-aware anti-spam gap. A reply after
// the last outbound message switches the conversation into conversational
// mode, where an immediate follow-up is allowed.
func (v *Validator) checkCooldown(in Input, res *Result) {
	lastOutbound := lastByDirection(in.Communications, domain.DirectionOutbound)
	if lastOutbound == nil {
		return
	}

	lastInbound := lastByDirection(in.Communications, domain.DirectionInbound)
	if lastInbound != nil && lastInbound.CreatedAt.After(lastOutbound.CreatedAt) {
		return
	}

	if gap := in.Now.Sub(lastOutbound.CreatedAt).Hours(); gap < CooldownHours {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeCooldown,
			Message: fmt.Sprintf("last outbound %.1fh ago with no reply; cooldown is %.0fh", gap, CooldownHours),
		})
	}
}

func (v *Validator) checkDoubleBooking(in Input, res *Result) {
	if in.Action.Type != domain.ActionSendBookingLink {
		return
	}
	if domain.HasActiveAppointment(in.Appointments, in.Now) {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeDoubleBooking,
			Message: "lead already has an active appointment",
		})
	}
}

// rebookingPhrases flag converted-lead messages that would restart booking
// or application flows. Support replies without these phrases stay allowed.
var rebookingPhrases = []string{
	"book", "schedule a call", "schedule another", "apply", "application", "pre-approval",
}

func (v *Validator) checkTerminalStage(in Input, res *Result) {
	if in.Lead.Stage != domain.StageConverted {
		return
	}

	if in.Action.Type == domain.ActionSendBookingLink {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeTerminalStage,
			Message: "converted lead must not receive booking links",
		})
		return
	}

	if in.Action.Type == domain.ActionSendMessage {
		lower := strings.ToLower(in.Action.Message)
		for _, phrase := range rebookingPhrases {
			if strings.Contains(lower, phrase) {
				res.Violations = append(res.Violations, Violation{
					Code:    CodeTerminalStage,
					Message: "converted lead may only receive plain support messages",
				})
				return
			}
		}
	}
}

func (v *Validator) checkContent(in Input, res *Result) {
	if strings.TrimSpace(in.Action.Message) == "" {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeEmptyMessage,
			Message: "send action carries no message content",
		})
	}
}

// promiseRe matches messages committing a human to contact at a specific
// time, e.g. "Greg will call you at 5pm". The system cannot guarantee that
// expectation, so such messages are blocked.
var promiseRe = regexp.MustCompile(`(?i)\b(will|going to|gonna)\s+(call|phone|ring|text|contact)\s+you\b[^.!?]*\b(at|by|around|before)\s+\d`)

// bookingAckRe recognizes acknowledgements of an existing confirmed
// booking, which may legitimately mention a time.
var bookingAckRe = regexp.MustCompile(`(?i)\b(confirm(ed|ing)?\s+(your\s+)?(booking|appointment|call)|your\s+(booking|appointment)\s+(is|for)|thanks\s+for\s+confirming)\b`)

func (v *Validator) checkPromises(in Input, res *Result) {
	if !promiseRe.MatchString(in.Action.Message) {
		return
	}
	if bookingAckRe.MatchString(in.Action.Message) {
		return
	}
	res.Violations = append(res.Violations, Violation{
		Code:    CodePromise,
		Message: "message promises a specific human contact time the system cannot guarantee",
	})
}

// Soft-rule thresholds and phrase lists.

var channelLengthLimits = map[domain.Channel]int{
	domain.ChannelSMS:   480,
	domain.ChannelEmail: 2000,
}

const lowConfidenceThreshold = 0.4

var stockPhrases = []string{
	"just checking in", "just following up", "touching base", "circling back",
	"wanted to reach out",
}

var pressurePhrases = []string{
	"act now", "limited time", "don't miss out", "last chance",
	"once in a lifetime", "exclusive offer", "guaranteed approval",
}

func (v *Validator) softChecks(in Input, res *Result) {
	msg := in.Action.Message
	lower := strings.ToLower(msg)

	if limit, ok := channelLengthLimits[in.Action.Channel]; ok && len([]rune(msg)) > limit {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("message length %d exceeds %s limit of %d", len([]rune(msg)), in.Action.Channel, limit))
	}

	if in.Action.Confidence > 0 && in.Action.Confidence < lowConfidenceThreshold {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("oracle confidence %.2f is below %.2f", in.Action.Confidence, lowConfidenceThreshold))
	}

	for _, phrase := range stockPhrases {
		if strings.Contains(lower, phrase) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("stock phrase: %q", phrase))
			break
		}
	}

	for _, phrase := range pressurePhrases {
		if strings.Contains(lower, phrase) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("high-pressure language: %q", phrase))
			break
		}
	}
}

func lastByDirection(comms []domain.Communication, dir domain.Direction) *domain.Communication {
	for i := range comms {
		if comms[i].Direction == dir {
			return &comms[i]
		}
	}
	return nil
}
