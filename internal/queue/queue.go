package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/metrics"
)

var (
	ErrQueueFull = errors.New("execution queue is full")
)

type Job struct {
	ID      string
	Options executor.ExecuteOptions
	Result  chan *executor.Outcome
	Err     chan error
	Ctx     context.Context
}

func NewJob(ctx context.Context, opts executor.ExecuteOptions) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Options: opts,
		Result:  make(chan *executor.Outcome, 1),
		Err:     make(chan error, 1),
		Ctx:     ctx,
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

// Submit enqueues job without blocking.
func (m *Manager) Submit(job *Job) error {
	select {
	case m.jobQueue <- job:
		m.UpdateQueueMetric()
		return nil
	default:
		return ErrQueueFull
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

// Execute submits a pipeline and waits for a worker to finish it. If ctx
// ends first the caller stops waiting, but the job still runs to completion.
func (m *Manager) Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.Outcome, error) {
	job := NewJob(ctx, opts)
	if err := m.Submit(job); err != nil {
		return nil, err
	}

	select {
	case res := <-job.Result:
		return res, nil
	case err := <-job.Err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
