package automation

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/monitoring"
)

// Runner executes a dispatched automation job.
type Runner interface {
	ExecuteJob(ctx context.Context, job Job) error
}

// Dispatcher hands matched rules off for execution so the webhook response
// to the provider is not held up by automation side effects.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// ErrQueueFull reports a dispatch rejected because the in-process queue is
// at capacity.
var ErrQueueFull = errors.New("automation: dispatch queue full")

// WorkerDispatcher runs jobs on a single background goroutine fed by a
// buffered channel. It is the default when no Redis queue is configured.
type WorkerDispatcher struct {
	runner Runner
	jobs   chan Job
	done   chan struct{}
}

func NewWorkerDispatcher(runner Runner, buffer int) *WorkerDispatcher {
	d := &WorkerDispatcher{
		runner: runner,
		jobs:   make(chan Job, buffer),
		done:   make(chan struct{}),
	}
	go d.startWorker()
	return d
}

func (d *WorkerDispatcher) startWorker() {
	defer close(d.done)
	for job := range d.jobs {
		if err := d.runner.ExecuteJob(context.Background(), job); err != nil {
			log.Error().Err(err).Str("workspace_id", job.WorkspaceID.String()).Msg("Automation job failed")
		}
	}
}

// Dispatch never blocks the caller: when the buffer is full the job is
// dropped with an alert rather than stalling the webhook response.
func (d *WorkerDispatcher) Dispatch(ctx context.Context, job Job) error {
	select {
	case d.jobs <- job:
		return nil
	default:
		monitoring.Alert("automation dispatch queue full", map[string]string{
			"workspace_id": job.WorkspaceID.String(),
		})
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the worker to drain the queue.
func (d *WorkerDispatcher) Close() {
	close(d.jobs)
	<-d.done
}
