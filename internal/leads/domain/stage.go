// Package domain provides core business rules and types for the leads
// bounded context.
package domain

// Stage is a lead's discrete position in the nurture pipeline.
type Stage string

const (
	StageNew                Stage = "NEW"
	StageContacted          Stage = "CONTACTED"
	StageEngaged            Stage = "ENGAGED"
	StageNurturing          Stage = "NURTURING"
	StageCallScheduled      Stage = "CALL_SCHEDULED"
	StageCallCompleted      Stage = "CALL_COMPLETED"
	StageApplicationStarted Stage = "APPLICATION_STARTED"
	StageConverted          Stage = "CONVERTED"
	StageLost               Stage = "LOST"
)

// terminalStages are stages where the batch scheduler must never initiate
// new outbound contact. Reactive replies remain allowed; that asymmetry is
// a policy choice, enforced at the selection boundary rather than here.
var terminalStages = map[Stage]bool{
	StageConverted: true,
	StageLost:      true,
}

// scheduledCallStages already have a call on the books; the analyzer treats
// them as hot regardless of reply counts.
var scheduledCallStages = map[Stage]bool{
	StageCallScheduled: true,
}

// IsTerminal returns true if the stage blocks batch-initiated outreach.
func IsTerminal(stage Stage) bool {
	return terminalStages[stage]
}

// IsScheduledCall returns true for stages with a call already scheduled.
func IsScheduledCall(stage Stage) bool {
	return scheduledCallStages[stage]
}
