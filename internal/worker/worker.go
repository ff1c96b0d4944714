// Package worker runs mutation jobs pulled from the queue, with database
// polling as the fallback when NATS is unavailable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/mutation"
	"github.com/mutesthq/mutest/internal/queue"
)

const defaultPollPeriod = 5 * time.Second

// Worker claims and executes mutation jobs one at a time.
type Worker struct {
	id         string
	engine     *engine.Engine
	store      *db.Store
	queue      *queue.Client
	consumer   jetstream.Consumer
	pollPeriod time.Duration
}

// WorkerConfig configures a single worker.
type WorkerConfig struct {
	WorkerID string
	Engine   *engine.Engine
	Store    *db.Store
	Queue    *queue.Client
}

// NewWorker creates a worker. Queue may be nil; the worker then polls the
// database for pending jobs.
func NewWorker(cfg WorkerConfig) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("mutation-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:         workerID,
		engine:     cfg.Engine,
		store:      cfg.Store,
		queue:      cfg.Queue,
		pollPeriod: defaultPollPeriod,
	}
}

// Name returns the worker's unique ID.
func (w *Worker) Name() string {
	return w.id
}

// SetPollPeriod sets the fetch and polling interval.
func (w *Worker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// Run processes jobs until the context is cancelled. A job in flight when
// cancellation arrives is drained and finalized before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.With().Str("worker_id", w.id).Logger()

	if w.queue != nil && w.queue.IsConnected() {
		consumer, err := w.queue.Jobs(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to get consumer, falling back to polling")
		} else {
			w.consumer = consumer
			logger.Info().Msg("connected to job consumer")
		}
	}

	logger.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				logger.Error().Err(err).Msg("error processing job")
				w.wait(ctx)
			}
		}
	}
}

func (w *Worker) processNext(ctx context.Context) error {
	if w.consumer != nil {
		return w.processFromQueue(ctx)
	}
	return w.processFromDB(ctx)
}

// processFromQueue fetches one message and runs the job it names.
func (w *Worker) processFromQueue(ctx context.Context) error {
	msgs, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil // Normal timeout, no jobs available
		}
		return fmt.Errorf("failed to fetch from queue: %w", err)
	}

	for msg := range msgs.Messages() {
		jobMsg, err := queue.DecodeJobMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("failed to decode job message")
			msg.Nak() // Negative ack to retry
			continue
		}

		if w.runJob(ctx, jobMsg.JobID, jobMsg.Config) {
			msg.Nak()
		} else {
			msg.Ack()
		}
	}

	if msgs.Error() != nil && !errors.Is(msgs.Error(), context.DeadlineExceeded) {
		return msgs.Error()
	}

	return nil
}

// processFromDB picks the oldest pending job directly from the database.
// The engine's running transition arbitrates when several pollers pick
// the same job.
func (w *Worker) processFromDB(ctx context.Context) error {
	job, err := w.store.NextPendingJob(ctx)
	if err != nil {
		return fmt.Errorf("failed to find pending job: %w", err)
	}

	if job == nil {
		w.wait(ctx)
		return nil
	}

	// Polled jobs carry no message, so they run with default config.
	w.runJob(ctx, job.ID, mutation.Config{})
	return nil
}

// runJob executes one job through the engine. The returned flag asks for
// redelivery. The engine finalizes job status itself, so the worker only
// sorts errors: a lost claim or an already-finished job is a normal skip,
// while infrastructure faults requeue the message and leave the row for
// the next attempt.
func (w *Worker) runJob(ctx context.Context, jobID uuid.UUID, cfg mutation.Config) (requeue bool) {
	logger := log.With().Str("worker_id", w.id).Str("job_id", jobID.String()).Logger()
	logger.Info().Msg("processing job")

	err := w.engine.Start(ctx, jobID, cfg)
	switch {
	case err == nil:
		logger.Info().Msg("job processed")
		return false
	case errors.Is(err, db.ErrInvalidTransition),
		errors.Is(err, db.ErrJobNotFound),
		errors.Is(err, engine.ErrJobActive):
		logger.Debug().Err(err).Msg("job not claimable, skipping")
		return false
	default:
		logger.Error().Err(err).Msg("job processing failed")
		return true
	}
}

// wait sleeps one poll period or until the context ends.
func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollPeriod):
	}
}
