package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
)

// TaskTypeArtwork is the asynq task type of an artwork job.
const TaskTypeArtwork = "artwork:process"

// QueueArtwork is the asynq queue artwork jobs are enqueued on.
const QueueArtwork = "artwork"

// Runner executes one job to completion.
type Runner interface {
	Run(ctx context.Context, jobID string, req *model.JobRequest) error
}

// InlineDispatcher runs each job on its own goroutine in this process.
type InlineDispatcher struct {
	runner Runner
	ctx    context.Context
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewInlineDispatcher creates a dispatcher whose jobs run under ctx, so
// cancelling it aborts in-flight waits.
func NewInlineDispatcher(ctx context.Context, runner Runner, logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{
		runner: runner,
		ctx:    ctx,
		logger: logger.Named("dispatch"),
	}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, jobID string, req *model.JobRequest) error {
	// the request context ends with the HTTP call, the job must not
	reqCopy := *req
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(d.ctx, jobID, &reqCopy); err != nil {
			d.logger.Debug("Job ended with error", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// AsynqDispatcher enqueues jobs for a worker process.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// NewArtworkTask builds the task for a job. The payload carries the Last.fm
// login, so it lives in Redis only as long as the task does.
func NewArtworkTask(jobID string, req *model.JobRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(model.JobPayload{JobID: jobID, Request: *req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeArtwork, payload), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string, req *model.JobRequest) error {
	task, err := NewArtworkTask(jobID, req)
	if err != nil {
		return err
	}

	// A job is never retried as a whole; failures are recorded on the job.
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueArtwork),
		asynq.MaxRetry(0),
		asynq.Timeout(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
