package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/executor"
	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/queue"
)

type Invoker interface {
	Invoke(ctx context.Context, route string, input model.InvocationContext) (*executor.Result, error)
}

type Worker struct {
	id      int
	invoker Invoker
	manager *queue.Manager
	logger  *zerolog.Logger
}

func NewWorker(id int, invoker Invoker, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:      id,
		invoker: invoker,
		manager: manager,
		logger:  logger,
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
	// The caller gave up while the job was queued; nothing was looked up yet.
	if err := job.Ctx.Err(); err != nil {
		w.logger.Debug().Int("worker_id", w.id).Str("job_id", job.ID).Msg("skipping abandoned job")
		job.Err <- err
		return
	}

	w.logger.Debug().Int("worker_id", w.id).Str("job_id", job.ID).Str("route", job.Route).Msg("processing job")

	startTime := time.Now()
	result, err := w.invoker.Invoke(job.Ctx, job.Route, job.Input)
	if err != nil {
		w.logger.Debug().
			Int("worker_id", w.id).
			Str("job_id", job.ID).
			Str("status", failure.Status(err)).
			Dur("elapsed", time.Since(startTime)).
			Msg("job failed")
		job.Err <- err
		return
	}

	job.Result <- result
}
