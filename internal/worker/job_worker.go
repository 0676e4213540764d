package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
)

// JobWorker processes artwork tasks pulled from asynq.
type JobWorker struct {
	runner Runner
	logger *zap.Logger
}

func NewJobWorker(runner Runner, logger *zap.Logger) *JobWorker {
	return &JobWorker{
		runner: runner,
		logger: logger.Named("worker"),
	}
}

// ProcessTask handles artwork task processing
func (w *JobWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Starting artwork job", zap.String("job_id", payload.JobID))

	// The outcome is recorded on the job itself; asynq only needs to know
	// the task ran.
	if err := w.runner.Run(ctx, payload.JobID, &payload.Request); err != nil {
		w.logger.Warn("Artwork job failed", zap.String("job_id", payload.JobID), zap.Error(err))
	}
	return nil
}
