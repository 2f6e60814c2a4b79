package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/rs/zerolog"
)

type fakeExecutor struct {
	calls atomic.Int32
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, opts executor.ExecuteOptions) (*executor.Outcome, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &executor.Outcome{Status: executor.StatusOk, Message: opts.Input}, nil
}

func startWorkers(t *testing.T, n int, exec Executor, m *queue.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := zerolog.Nop()
	for i := 0; i < n; i++ {
		go NewWorker(i, exec, m, &logger).Start(ctx)
	}
}

func TestWorkersDrainQueue(t *testing.T) {
	m := queue.NewManager(16)
	exec := &fakeExecutor{}
	startWorkers(t, 3, exec, m)

	for i := 0; i < 10; i++ {
		out, err := m.Execute(context.Background(), executor.ExecuteOptions{Input: "x"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if out.Status != executor.StatusOk || out.Message != "x" {
			t.Errorf("outcome = %+v", out)
		}
	}
	if got := exec.calls.Load(); got != 10 {
		t.Errorf("executor called %d times, want 10", got)
	}
}

func TestWorkerReportsError(t *testing.T) {
	m := queue.NewManager(1)
	want := errors.New("sandbox unavailable")
	startWorkers(t, 1, &fakeExecutor{err: want}, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.Execute(ctx, executor.ExecuteOptions{}); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestWorkerStops(t *testing.T) {
	m := queue.NewManager(1)
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewWorker(0, &fakeExecutor{}, m, &logger).Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
