package scheduler

import (
	"context"
	"time"

	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

// CycleRunner is the engine surface the dispatcher drives.
type CycleRunner interface {
	RunCycle(ctx context.Context, batchSize int) (processed, failed int, err error)
	SweepOverdue(ctx context.Context) error
}

// PendingOutcomeLister recovers outcome evaluations whose queue entries were
// lost, e.g. across a Redis flush.
type PendingOutcomeLister interface {
	ListPendingOutcomesDue(ctx context.Context, now time.Time) ([]repository.OutcomeRecord, error)
}

// OutcomeEnqueuer re-enqueues recovered evaluations.
type OutcomeEnqueuer interface {
	EnqueueOutcomeEvaluation(ctx context.Context, outcomeID uuid.UUID, at time.Time) error
}

// Dispatcher runs the batch cycle on a fixed interval and sweeps for
// overdue reviews and stranded outcome evaluations between cycles.
type Dispatcher struct {
	runner    CycleRunner
	outcomes  PendingOutcomeLister
	enqueuer  OutcomeEnqueuer
	interval  time.Duration
	batchSize int
	log       *logger.Logger
}

func NewDispatcher(cfg config.SchedulerConfig, runner CycleRunner, outcomes PendingOutcomeLister, enqueuer OutcomeEnqueuer, log *logger.Logger) *Dispatcher {
	interval := cfg.GetBatchInterval()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	batchSize := cfg.GetBatchSize()
	if batchSize < 1 {
		batchSize = 50
	}

	return &Dispatcher{
		runner:    runner,
		outcomes:  outcomes,
		enqueuer:  enqueuer,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.runner == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// First cycle runs immediately so a restart does not wait a full
	// interval with work pending.
	d.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	processed, failed, err := d.runner.RunCycle(ctx, d.batchSize)
	if err != nil {
		d.log.Error("batch cycle failed", "error", err.Error())
	} else if processed+failed > 0 {
		d.log.Info("batch cycle done", "processed", processed, "failed", failed)
	}

	if err := d.runner.SweepOverdue(ctx); err != nil {
		d.log.Error("overdue sweep failed", "error", err.Error())
	}

	d.recoverOutcomes(ctx)
}

func (d *Dispatcher) recoverOutcomes(ctx context.Context) {
	if d.outcomes == nil || d.enqueuer == nil {
		return
	}

	due, err := d.outcomes.ListPendingOutcomesDue(ctx, time.Now())
	if err != nil {
		d.log.Warn("pending outcome scan failed", "error", err.Error())
		return
	}
	for _, rec := range due {
		if err := d.enqueuer.EnqueueOutcomeEvaluation(ctx, rec.ID, time.Now()); err != nil {
			d.log.Warn("outcome re-enqueue failed", "outcome_id", rec.ID.String(), "error", err.Error())
		}
	}
}
