package worker

import (
	"context"
	"time"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/rs/zerolog"
)

// Executor is the part of *executor.Executor a worker needs.
type Executor interface {
	Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.Outcome, error)
}

type Worker struct {
	id       int
	executor Executor
	manager  *queue.Manager
	logger   *zerolog.Logger
}

func NewWorker(id int, exec Executor, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: exec,
		manager:  manager,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	w.logger.Debug().
		Int("worker_id", w.id).
		Str("job_id", job.ID).
		Str("language", string(job.Options.Language.ID)).
		Msg("processing job")

	startTime := time.Now()
	result, err := w.executor.Execute(job.Ctx, job.Options)
	if err != nil {
		w.logger.Error().Err(err).Int("worker_id", w.id).Str("job_id", job.ID).Msg("job failed")
		job.Err <- err
		return
	}

	w.logger.Debug().
		Int("worker_id", w.id).
		Str("job_id", job.ID).
		Str("status", string(result.Status)).
		Dur("duration", time.Since(startTime)).
		Msg("job finished")

	job.Result <- result
}
