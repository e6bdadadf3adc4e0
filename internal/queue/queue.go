package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/itstheanurag/fnrunner/internal/executor"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
)

// Job is one pending invocation. Result and Err are buffered so a worker
// never blocks on a caller that has gone away.
type Job struct {
	ID     string
	Route  string
	Input  model.InvocationContext
	Result chan *executor.Result
	Err    chan error
	Ctx    context.Context
}

func NewJob(ctx context.Context, route string, input model.InvocationContext) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Route:  route,
		Input:  input,
		Result: make(chan *executor.Result, 1),
		Err:    make(chan error, 1),
		Ctx:    ctx,
	}
}

type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// Submit blocks while the queue is full, until ctx is done.
func (m *Manager) Submit(ctx context.Context, job *Job) error {
	select {
	case m.jobQueue <- job:
		m.UpdateQueueMetric()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

func (m *Manager) Len() int {
	return len(m.jobQueue)
}

func (m *Manager) UpdateQueueMetric() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
