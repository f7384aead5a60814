package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadReview = "leads.review"

const TaskOutcomeEvaluate = "leads.outcome.evaluate"

// Review triggers. Inbound-triggered reviews take the reactive path, which
// does not skip terminal-stage leads.
const (
	TriggerBatch   = "batch"
	TriggerInbound = "inbound"
)

type LeadReviewPayload struct {
	LeadID  string `json:"leadId"`
	Trigger string `json:"trigger"`
}

type OutcomeEvaluatePayload struct {
	OutcomeID string `json:"outcomeId"`
}

func NewLeadReviewTask(payload LeadReviewPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadReview, data), nil
}

func ParseLeadReviewPayload(task *asynq.Task) (LeadReviewPayload, error) {
	var payload LeadReviewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadReviewPayload{}, err
	}
	return payload, nil
}

func NewOutcomeEvaluateTask(payload OutcomeEvaluatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutcomeEvaluate, data), nil
}

func ParseOutcomeEvaluatePayload(task *asynq.Task) (OutcomeEvaluatePayload, error) {
	var payload OutcomeEvaluatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutcomeEvaluatePayload{}, err
	}
	return payload, nil
}
