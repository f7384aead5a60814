// Package health computes an ephemeral engagement signal from a lead's raw
// interaction history. The signal is recomputed from current data every
// evaluation and is never persisted as a source of truth.
package health

import (
	"time"

	"nurture_backend/internal/leads/domain"
)

// Temperature is a coarse engagement classification used to prioritize
// review frequency.
type Temperature string

const (
	TemperatureHot     Temperature = "hot"
	TemperatureWarm    Temperature = "warm"
	TemperatureCooling Temperature = "cooling"
	TemperatureCold    Temperature = "cold"
	TemperatureDead    Temperature = "dead"
)

// Trend compares reply counts in adjacent 3-day windows.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Contextual urgency labels, checked in priority order. Only the first
// match applies; the ordering is a deliberate tie-break.
const (
	UrgencyUrgent      = "URGENT"      // accepted-offer motivation overrides everything
	UrgencyHot         = "HOT"         // just-completed call marked ready to proceed
	UrgencyStuck       = "STUCK"       // application started >12h ago, not completed
	UrgencyAppointment = "APPOINTMENT" // appointment starting within 24h
)

// AttrMotivation is the attribute-bag key whose "accepted_offer" value
// signals the highest urgency.
const AttrMotivation = "motivation"

// Signal is the analyzer output consumed by the oracle prompt and the
// scheduler's rescheduling decisions.
type Signal struct {
	Temperature       Temperature
	Trend             Trend
	Tone              Tone
	ObjectionDetected bool
	QuestionCount     int
	Urgency           string // empty when no contextual urgency applies
	ReviewAfterHours  float64
	HoursSinceContact float64
	RecentReplies     int // inbound replies in the last 3 days
}

// Input bundles everything the analyzer reads. Appointments and LastCall
// are optional; absence degrades to default branches, never an error.
type Input struct {
	Lead           domain.Lead
	Communications []domain.Communication // most recent first
	Appointments   []domain.Appointment
	LastCall       *domain.CallOutcome
	Now            time.Time
}

// Analyzer converts interaction history into an engagement signal.
type Analyzer struct {
	classifier Classifier
}

// NewAnalyzer creates an analyzer with the given tone classifier.
func NewAnalyzer(classifier Classifier) *Analyzer {
	return &Analyzer{classifier: classifier}
}

// reviewHours maps temperature to the recommended next-review interval.
// This is the sole scheduling hint the batch runner consumes.
var reviewHours = map[Temperature]float64{
	TemperatureHot:     0.5,
	TemperatureWarm:    2,
	TemperatureCooling: 6,
	TemperatureCold:    24,
	TemperatureDead:    168,
}

// Analyze computes the engagement signal for one lead.
func (a *Analyzer) Analyze(in Input) Signal {
	now := in.Now
	hoursSince := in.Lead.HoursSinceContact(now)

	recent, previous := countRepliesInWindows(in.Communications, now)

	verdict := a.classifyLastInbound(in.Communications)

	urgency := contextualUrgency(in, now)

	temp := classifyTemperature(in, now, hoursSince, recent, verdict)

	// Contextual urgency can force the temperature upward. STUCK maps to
	// warm so stuck-but-salvageable deals are not starved of attention.
	switch urgency {
	case UrgencyUrgent, UrgencyHot:
		temp = TemperatureHot
	case UrgencyStuck:
		temp = TemperatureWarm
	}

	return Signal{
		Temperature:       temp,
		Trend:             trendOf(recent, previous),
		Tone:              verdict.Tone,
		ObjectionDetected: verdict.Objection,
		QuestionCount:     verdict.Questions,
		Urgency:           urgency,
		ReviewAfterHours:  reviewHours[temp],
		HoursSinceContact: hoursSince,
		RecentReplies:     recent,
	}
}

// classifyTemperature applies the priority-ordered temperature rules,
// returning on first match.
func classifyTemperature(in Input, now time.Time, hoursSince float64, replies int, verdict Verdict) Temperature {
	switch {
	case domain.HasActiveAppointment(in.Appointments, now) || domain.IsScheduledCall(in.Lead.Stage):
		return TemperatureHot
	case replies > 2 && hoursSince < 12 && verdict.Tone == ToneEnthusiastic:
		return TemperatureHot
	case replies >= 1 && hoursSince < 48 && !verdict.Objection:
		return TemperatureWarm
	case replies >= 1 && hoursSince < 120:
		return TemperatureCooling
	case replies == 0 && hoursSince > 96:
		return TemperatureDead
	case replies == 0 && hoursSince > 48:
		return TemperatureCold
	default:
		return TemperatureCooling
	}
}

// contextualUrgency checks deadline-like conditions in priority order.
func contextualUrgency(in Input, now time.Time) string {
	if in.Lead.Attribute(AttrMotivation) == "accepted_offer" {
		return UrgencyUrgent
	}

	if in.LastCall != nil && in.LastCall.ReadyToProceed {
		return UrgencyHot
	}

	if in.Lead.ApplicationStartedAt != nil && in.Lead.ApplicationCompletedAt == nil {
		if now.Sub(*in.Lead.ApplicationStartedAt) > 12*time.Hour {
			return UrgencyStuck
		}
	}

	for _, appt := range in.Appointments {
		if appt.IsActive(now) && appt.StartTime.Sub(now) < 24*time.Hour {
			return UrgencyAppointment
		}
	}

	return ""
}

// countRepliesInWindows counts inbound replies in (now-3d, now] and
// (now-6d, now-3d].
func countRepliesInWindows(comms []domain.Communication, now time.Time) (recent, previous int) {
	threeDaysAgo := now.Add(-72 * time.Hour)
	sixDaysAgo := now.Add(-144 * time.Hour)

	for _, c := range comms {
		if c.Direction != domain.DirectionInbound {
			continue
		}
		switch {
		case c.CreatedAt.After(threeDaysAgo):
			recent++
		case c.CreatedAt.After(sixDaysAgo):
			previous++
		}
	}
	return recent, previous
}

func trendOf(recent, previous int) Trend {
	switch {
	case recent > previous:
		return TrendImproving
	case recent < previous && previous > 0:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// classifyLastInbound runs the classifier on the most recent inbound
// message; no inbound history yields an unknown verdict.
func (a *Analyzer) classifyLastInbound(comms []domain.Communication) Verdict {
	for _, c := range comms {
		if c.Direction == domain.DirectionInbound {
			return a.classifier.Classify(c.Content)
		}
	}
	return Verdict{Tone: ToneUnknown}
}
