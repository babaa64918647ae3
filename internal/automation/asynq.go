package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// TaskTypeRun is the queue task name for executing matched automation rules.
const TaskTypeRun = "automation:run"

const queueName = "automations"

// AsynqDispatcher enqueues automation jobs on a Redis-backed asynq queue so
// execution survives restarts and can run on separate workers.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(redisAddr string) *AsynqDispatcher {
	return &AsynqDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode automation job: %w", err)
	}
	task := asynq.NewTask(TaskTypeRun, payload)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(queueName), asynq.MaxRetry(3))
	return err
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// NewWorkerServer builds the asynq server that consumes automation jobs.
func NewWorkerServer(redisAddr string, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueName: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Msg("Automation task failed")
			}),
		},
	)
}

// RegisterHandlers binds the automation task to the runner. Handlers are
// idempotent at the execution-counter level only; retries happen only when
// the job never started executing.
func RegisterHandlers(mux *asynq.ServeMux, runner Runner) {
	mux.HandleFunc(TaskTypeRun, func(ctx context.Context, task *asynq.Task) error {
		var job Job
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			// Malformed payloads cannot succeed on retry.
			return fmt.Errorf("decode automation job: %v: %w", err, asynq.SkipRetry)
		}
		return runner.ExecuteJob(ctx, job)
	})
}
