// Package dispatcher implements the long-lived consumer loop: blocking
// dequeue, parse, invoke the executor, record the terminal transition,
// publish the analysis notification. Grounded on
// original_source/backend/execution-worker/main.go's workerLoop/processJob
// split (dequeue-parse-process structure) and
// backend/services/schedule_runner.go's goroutine-pool/stopCh/WaitGroup
// shutdown shape, generalized from one ticking goroutine to a bounded pool
// of blocking consumers.
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// jobQueue is the narrow surface dispatcher needs from queue.Client,
// isolated so tests can substitute an in-memory fake.
type jobQueue interface {
	Dequeue(ctx context.Context) (string, error)
	PublishAnalysis(ctx context.Context, notification models.AnalysisNotification) error
}

// recordStore is the narrow surface dispatcher needs from records.Store.
type recordStore interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkTerminal(ctx context.Context, jobID string, outcome models.ExecutionOutcome) error
}

// jobExecutor is the narrow surface dispatcher needs from executor.Executor.
type jobExecutor interface {
	Execute(ctx context.Context, job models.Job) models.ExecutionOutcome
}

// Dispatcher owns the worker pool that drains the work queue.
type Dispatcher struct {
	queue       jobQueue
	store       recordStore
	executor    jobExecutor
	concurrency int
	logger      *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Dispatcher with concurrency independent workers, each
// running its own blocking-dequeue loop, per SPEC_FULL.md §6's
// DISPATCHER_CONCURRENCY.
func New(q jobQueue, store recordStore, exec jobExecutor, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		queue:       q,
		store:       store,
		executor:    exec,
		concurrency: concurrency,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the worker pool. ctx cancellation unblocks in-flight
// BLPop calls; Stop additionally waits for in-flight jobs to finish
// cleanup before returning.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}
}

// Stop signals every worker to stop picking up new jobs and blocks until
// in-flight jobs have drained, or until grace elapses.
func (d *Dispatcher) Stop(grace time.Duration) {
	close(d.stopCh)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		d.logger.Warn("shutdown grace period elapsed with workers still in flight")
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) {
	defer d.wg.Done()
	log := d.logger.With(zap.Int("worker", workerID))
	log.Info("worker started")

	for {
		select {
		case <-d.stopCh:
			log.Info("worker stopped")
			return
		default:
		}

		payload, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopped")
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			continue
		}

		d.processJob(ctx, log, payload)
	}
}

// processJob carries one job through parsed -> marked-processing ->
// executed -> marked-terminal -> notified. A parse failure drops the job
// (nothing to key a record-store update on). A failed processing write
// skips execution and leaves the record as it was; a failed terminal write
// withholds the analysis notification.
func (d *Dispatcher) processJob(ctx context.Context, log *zap.Logger, payload string) {
	var job models.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Error("dropping malformed job", zap.Error(errs.ErrMalformedJob), zap.String("payload", truncate(payload, 200)))
		return
	}

	jobLog := log.With(zap.String("jobId", job.JobID), zap.String("language", job.Language))
	jobLog.Info("processing job")

	if err := d.store.MarkProcessing(ctx, job.JobID); err != nil {
		jobLog.Error("failed to mark job processing", zap.Error(err))
		return
	}

	outcome := d.executor.Execute(ctx, job)
	jobLog.Info("execution finished", zap.String("status", string(outcome.Status)), zap.Int("exitCode", outcome.ExitCode))

	if err := d.store.MarkTerminal(ctx, job.JobID, outcome); err != nil {
		jobLog.Error("failed to mark job terminal, notification withheld", zap.Error(err))
		return
	}

	notification := models.AnalysisNotification{JobID: job.JobID, Language: job.Language, Code: job.Code}
	if err := d.queue.PublishAnalysis(ctx, notification); err != nil {
		jobLog.Warn("failed to publish analysis notification", zap.Error(err))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
