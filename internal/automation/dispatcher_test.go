package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

type recordingRunner struct {
	mu      sync.Mutex
	jobs    []Job
	release chan struct{}
}

func (r *recordingRunner) ExecuteJob(ctx context.Context, job Job) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingRunner) executed() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.jobs...)
}

func TestWorkerDispatcher_RunsDispatchedJobs(t *testing.T) {
	runner := &recordingRunner{}
	dispatcher := NewWorkerDispatcher(runner, 4)

	job := Job{
		WorkspaceID: uuid.New(),
		RuleIDs:     []uuid.UUID{uuid.New()},
		Event:       model.TriggerEvent{Body: "hello"},
		ContactID:   uuid.New(),
	}
	assert.NoError(t, dispatcher.Dispatch(context.Background(), job))

	dispatcher.Close()

	executed := runner.executed()
	assert.Len(t, executed, 1)
	assert.Equal(t, job.WorkspaceID, executed[0].WorkspaceID)
	assert.Equal(t, job.RuleIDs, executed[0].RuleIDs)
}

func TestWorkerDispatcher_CloseDrainsQueue(t *testing.T) {
	runner := &recordingRunner{}
	dispatcher := NewWorkerDispatcher(runner, 8)

	for i := 0; i < 5; i++ {
		assert.NoError(t, dispatcher.Dispatch(context.Background(), Job{WorkspaceID: uuid.New()}))
	}
	dispatcher.Close()

	assert.Len(t, runner.executed(), 5)
}

func TestWorkerDispatcher_FullQueueRejectsWithoutBlocking(t *testing.T) {
	runner := &recordingRunner{release: make(chan struct{})}
	dispatcher := NewWorkerDispatcher(runner, 1)

	ctx := context.Background()
	// First job is picked up by the worker and parks on release; the second
	// fills the buffer.
	assert.NoError(t, dispatcher.Dispatch(ctx, Job{WorkspaceID: uuid.New()}))
	waitForBuffered(t, dispatcher)
	assert.NoError(t, dispatcher.Dispatch(ctx, Job{WorkspaceID: uuid.New()}))

	err := dispatcher.Dispatch(ctx, Job{WorkspaceID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(runner.release)
	dispatcher.Close()
	assert.Len(t, runner.executed(), 2)
}

// waitForBuffered waits until the worker has taken the first job off the
// channel so the next Dispatch deterministically fills the buffer.
func waitForBuffered(t *testing.T, d *WorkerDispatcher) {
	deadline := time.After(2 * time.Second)
	for len(d.jobs) != 0 {
		select {
		case <-deadline:
			t.Fatal("worker never picked up the first job")
		case <-time.After(time.Millisecond):
		}
	}
}
