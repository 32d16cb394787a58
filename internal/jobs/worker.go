package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/desk-api/internal/metrics"
	"github.com/ksred/desk-api/internal/workers"
)

// Handler runs one claimed job's work and returns a JSON-encodable result.
// Handlers receive the already-decoded payload for their job type.
type Handler func(ctx context.Context, payload Payload) (interface{}, error)

// Worker polls the queue and dispatches handlers by job type. Handler errors
// and panics become FailOrRetry transitions; nothing a handler does can crash
// the polling loop.
type Worker struct {
	queue        *Queue
	heartbeats   *workers.Heartbeats
	handlers     map[string]Handler
	pollInterval time.Duration
}

// NewWorker builds a worker with an empty handler registry.
func NewWorker(queue *Queue, heartbeats *workers.Heartbeats, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		queue:        queue,
		heartbeats:   heartbeats,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
	}
}

// Register installs the handler for one job type.
func (w *Worker) Register(jobType string, handler Handler) {
	w.handlers[jobType] = handler
}

// Run polls until ctx is cancelled, sleeping between empty passes.
func (w *Worker) Run(ctx context.Context) {
	logger := log.With().Str("component", "jobs_worker").Logger()
	logger.Info().Msg("starting jobs worker")

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("queue pass failed")
		}

		w.beat(workers.StatusRunning, fmt.Sprintf("processed=%d", processed))

		if processed == 0 {
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutting down jobs worker")
				w.beat(workers.StatusStopped, "worker exiting")
				return
			case <-time.After(w.pollInterval):
			}
		} else if ctx.Err() != nil {
			logger.Info().Msg("shutting down jobs worker")
			w.beat(workers.StatusStopped, "worker exiting")
			return
		}
	}
}

// RunOnce drains the queue of currently eligible jobs and returns how many it
// processed. Exported so tests and the --once mode can drive single passes.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if depth, err := w.queue.CountEligible(); err == nil {
		metrics.QueueDepth.WithLabelValues("jobs").Set(float64(depth))
	}

	processed := 0
	for {
		job, err := w.queue.ClaimNext()
		if err != nil {
			return processed, err
		}
		if job == nil {
			return processed, nil
		}
		processed++
		w.processClaimed(ctx, job)
	}
}

func (w *Worker) processClaimed(ctx context.Context, job *Job) {
	logger := log.With().
		Str("component", "jobs_worker").
		Uint("job_id", job.ID).
		Str("job_type", job.JobType).
		Logger()

	handler, ok := w.handlers[job.JobType]
	if !ok {
		logger.Warn().Msg("unsupported job type")
		// Immediate requeue eligibility: the job is reclaimed and refails
		// until max_attempts drains it.
		if err := w.queue.FailOrRetry(job, fmt.Sprintf("Unsupported job_type '%s'", job.JobType), 0); err != nil {
			logger.Error().Err(err).Msg("failed to record unsupported job type")
		}
		metrics.JobsProcessed.WithLabelValues(job.JobType, "unsupported").Inc()
		return
	}

	payload, err := DecodePayload(job.JobType, job.Payload)
	if err != nil {
		logger.Error().Err(err).Msg("malformed payload")
		if ferr := w.queue.FailOrRetry(job, err.Error(), DefaultRetryDelay); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record payload failure")
		}
		metrics.JobsProcessed.WithLabelValues(job.JobType, "failed").Inc()
		return
	}

	logger.Info().Msg("starting job")
	result, err := w.runHandler(ctx, handler, payload)
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		if ferr := w.queue.FailOrRetry(job, err.Error(), DefaultRetryDelay); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record job failure")
		}
		metrics.JobsProcessed.WithLabelValues(job.JobType, "failed").Inc()
		return
	}

	if err := w.queue.Complete(job, result); err != nil {
		logger.Error().Err(err).Msg("failed to record job completion")
		return
	}
	logger.Info().Msg("completed job")
	metrics.JobsProcessed.WithLabelValues(job.JobType, "completed").Inc()
}

// runHandler converts handler panics into errors so one bad job cannot take
// the worker down.
func (w *Worker) runHandler(ctx context.Context, handler Handler, payload Payload) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (w *Worker) beat(status, details string) {
	if w.heartbeats == nil {
		return
	}
	if err := w.heartbeats.Upsert(workers.TypeJobs, status, details); err != nil {
		log.Warn().Err(err).Msg("failed to persist jobs worker heartbeat")
	}
}
