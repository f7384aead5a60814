package scheduler

import (
	"context"
	"fmt"
	"time"

	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// LeadProcessor runs one decision pass for one lead. Reactive reviews,
// triggered by an inbound reply, relax the terminal-stage gate so converted
// leads can still get a support answer.
type LeadProcessor interface {
	ProcessLead(ctx context.Context, leadID uuid.UUID) error
	ProcessReactive(ctx context.Context, leadID uuid.UUID) error
}

// OutcomeEvaluator judges one armed outcome record.
type OutcomeEvaluator interface {
	Evaluate(ctx context.Context, outcomeID uuid.UUID, now time.Time) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor LeadProcessor
	evaluator OutcomeEvaluator
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor LeadProcessor, evaluator OutcomeEvaluator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		evaluator: evaluator,
		log:       log,
	}

	mux.HandleFunc(TaskLeadReview, w.handleLeadReview)
	mux.HandleFunc(TaskOutcomeEvaluate, w.handleOutcomeEvaluate)

	return w, nil
}

func (w *Worker) handleLeadReview(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadReviewPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	w.log.Info("lead review task", "lead_id", payload.LeadID, "trigger", payload.Trigger)
	if payload.Trigger == TriggerInbound {
		return w.processor.ProcessReactive(ctx, leadID)
	}
	return w.processor.ProcessLead(ctx, leadID)
}

func (w *Worker) handleOutcomeEvaluate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutcomeEvaluatePayload(task)
	if err != nil {
		return err
	}

	outcomeID, err := uuid.Parse(payload.OutcomeID)
	if err != nil {
		return err
	}

	return w.evaluator.Evaluate(ctx, outcomeID, time.Now())
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
