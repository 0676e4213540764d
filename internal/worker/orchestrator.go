package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/registry"
	"github.com/artworkup/api/internal/service"
)

// Error codes sent to websocket subscribers when a job fails.
const (
	CodeJobFailed   = "JOB_FAILED"
	CodeLoginFailed = "LOGIN_FAILED"
)

// RecordSource produces the album records of a job.
type RecordSource interface {
	Normalize(ctx context.Context, req *model.JobRequest, progress service.ProgressFunc) ([]model.AlbumRecord, error)
}

// PresenceChecker decides whether an album already has artwork.
type PresenceChecker interface {
	ShouldCheck(rec model.AlbumRecord) bool
	Check(ctx context.Context, rec model.AlbumRecord) model.PresenceResult
}

// ArtworkResolver finds a replacement image URL.
type ArtworkResolver interface {
	Resolve(ctx context.Context, artist, album string) string
}

// ImageFetcher downloads an image to a local file.
type ImageFetcher interface {
	Fetch(ctx context.Context, url, dest string) bool
}

// Notifier pushes job updates to live subscribers.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, phase model.JobPhase, message string)
	BroadcastComplete(jobID string, job *model.Job)
	BroadcastError(jobID string, code, message string)
}

// Pipeline bundles the stages a job runs through.
type Pipeline struct {
	Records   RecordSource
	Checker   PresenceChecker
	Resolver  ArtworkResolver
	Fetcher   ImageFetcher
	Uploader  *service.Uploader
	Worklists *service.WorklistStore
}

// Orchestrator runs artwork jobs end to end and is the only writer of a job's state.
type Orchestrator struct {
	pipeline    Pipeline
	jobs        registry.Store
	notifier    Notifier
	uploadDelay time.Duration
	logger      *zap.Logger
}

func NewOrchestrator(pipeline Pipeline, jobs registry.Store, notifier Notifier, uploadDelay time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline:    pipeline,
		jobs:        jobs,
		notifier:    notifier,
		uploadDelay: uploadDelay,
		logger:      logger.Named("orchestrator"),
	}
}

// progressOf is round(100*done/total).
func progressOf(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// Run executes the job to a terminal state. Panics and unexpected errors
// mark the job failed; per-album failures are only counted.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req *model.JobRequest) (err error) {
	logger := o.logger.With(zap.String("job_id", jobID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error("Job panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.fail(ctx, jobID, fmt.Sprintf("Error: %v", r), CodeJobFailed)
		}
	}()

	if err := o.run(ctx, jobID, req, logger); err != nil {
		logger.Error("Job failed", zap.Error(err))
		if !errors.Is(err, errJobAlreadyFailed) {
			o.fail(ctx, jobID, fmt.Sprintf("Error: %v", err), CodeJobFailed)
		}
		return err
	}
	return nil
}

// errJobAlreadyFailed signals that the failure message has already been recorded.
var errJobAlreadyFailed = errors.New("job failed")

func (o *Orchestrator) run(ctx context.Context, jobID string, req *model.JobRequest, logger *zap.Logger) error {
	o.update(ctx, jobID, func(j *model.Job) {
		j.Status = model.JobStatusRunning
		j.Phase = model.PhaseSearching
		j.Progress = 0
		j.Message = "Initializing..."
	})

	// Searching
	records, err := o.pipeline.Records.Normalize(ctx, req, func(msg string) {
		o.update(ctx, jobID, func(j *model.Job) { j.Message = msg })
	})
	if err != nil {
		return err
	}
	logger.Info("Records collected", zap.Int("albums", len(records)))

	// Checking
	total := len(records)
	o.update(ctx, jobID, func(j *model.Job) {
		j.Phase = model.PhaseChecking
		j.Progress = 0
		j.TotalAlbums = total
		j.Message = fmt.Sprintf("Found %d albums. Checking for missing artwork...", total)
	})

	missing := o.check(ctx, jobID, records, logger)
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(missing) == 0 {
		o.complete(ctx, jobID, func(j *model.Job) {
			j.MissingArtwork = []model.MissingArtworkEntry{}
			j.Message = "All albums have artwork!"
		})
		return nil
	}

	path, err := o.pipeline.Worklists.Save(ctx, jobID, missing)
	if err != nil {
		return err
	}
	o.update(ctx, jobID, func(j *model.Job) {
		j.MissingArtwork = missing
		j.WorklistPath = path
		j.Message = fmt.Sprintf("Found %d albums missing artwork", len(missing))
	})

	if req.CheckOnly {
		o.complete(ctx, jobID, func(j *model.Job) {
			j.Message = fmt.Sprintf("Check completed. Found %d albums missing artwork.", len(missing))
		})
		return nil
	}
	if !req.HasUploadCredentials() {
		o.complete(ctx, jobID, func(j *model.Job) {
			j.Message = "Check completed. Last.fm credentials not provided for upload."
		})
		return nil
	}

	return o.upload(ctx, jobID, req, logger)
}

// check runs every record through the checker and resolver and returns the worklist.
func (o *Orchestrator) check(ctx context.Context, jobID string, records []model.AlbumRecord, logger *zap.Logger) []model.MissingArtworkEntry {
	missing := []model.MissingArtworkEntry{}
	seen := make(map[string]bool)
	total := len(records)

	for i, rec := range records {
		if ctx.Err() != nil {
			return missing
		}

		if !o.pipeline.Checker.ShouldCheck(rec) {
			logger.Warn("Skipping incomplete record",
				zap.String("artist", rec.ArtistName),
				zap.String("album", rec.AlbumTitle),
			)
		} else if !seen[rec.Key()] {
			logger.Debug("Checking album", zap.String("album", rec.Key()))

			result := o.pipeline.Checker.Check(ctx, rec)
			if !result.ArtworkExists {
				artURL := rec.AlbumArtURL
				if artURL == "" {
					artURL = o.pipeline.Resolver.Resolve(ctx, rec.ArtistName, rec.AlbumTitle)
				}
				if artURL != "" && result.LastFMURL != "" {
					seen[rec.Key()] = true
					missing = append(missing, model.NewMissingArtworkEntry(rec, artURL, result.LastFMURL))
				}
			}
		}

		done := i + 1
		o.update(ctx, jobID, func(j *model.Job) {
			j.Progress = progressOf(done, total)
			j.Message = fmt.Sprintf("Checking artwork: %d/%d", done, total)
		})
	}
	return missing
}

// upload works from the saved worklist rather than the in-memory check result.
func (o *Orchestrator) upload(ctx context.Context, jobID string, req *model.JobRequest, logger *zap.Logger) error {
	entries, err := o.pipeline.Worklists.Load(jobID)
	if err != nil {
		return fmt.Errorf("failed to reload worklist: %w", err)
	}

	o.update(ctx, jobID, func(j *model.Job) {
		j.Message = "Setting up browser for uploads..."
	})

	session, err := o.pipeline.Uploader.Open(ctx)
	if err != nil {
		o.fail(ctx, jobID, fmt.Sprintf("Error during upload process: %v", err), CodeJobFailed)
		return fmt.Errorf("%w: %v", errJobAlreadyFailed, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
		logger.Info("Browser closed")
	}()

	o.update(ctx, jobID, func(j *model.Job) {
		j.Message = "Logging in to Last.fm..."
	})
	if err := session.Login(ctx, req.LastFMEmail, req.LastFMPassword); err != nil {
		if errors.Is(err, service.ErrLoginFailed) {
			o.fail(ctx, jobID, "Login failed", CodeLoginFailed)
			return fmt.Errorf("%w: %v", errJobAlreadyFailed, err)
		}
		return err
	}

	o.update(ctx, jobID, func(j *model.Job) {
		j.Phase = model.PhaseUploading
		j.Progress = 0
		j.Message = "Starting uploads..."
	})

	var succeeded, failed int
	total := len(entries)
	for i, entry := range entries {
		if !entry.Complete() {
			logger.Warn("Skipping incomplete worklist entry", zap.String("album", entry.Key()))
			continue
		}

		imagePath := o.pipeline.Worklists.ImagePath(entry)
		o.update(ctx, jobID, func(j *model.Job) {
			j.Message = fmt.Sprintf(`Downloading artwork for "%s"`, entry.Key())
		})

		if !o.pipeline.Fetcher.Fetch(ctx, entry.AlbumArtURL, imagePath) {
			logger.Error("Failed to download image", zap.String("album", entry.Key()))
			failed++
		} else {
			o.update(ctx, jobID, func(j *model.Job) {
				j.Message = fmt.Sprintf(`Uploading artwork for "%s"`, entry.Key())
			})
			if err := session.Upload(ctx, entry, imagePath); err != nil {
				logger.Error("Upload failed", zap.String("album", entry.Key()), zap.Error(err))
				failed++
			} else {
				logger.Info("Upload successful", zap.String("album", entry.Key()))
				succeeded++
			}
		}

		done, ok, bad := i+1, succeeded, failed
		o.update(ctx, jobID, func(j *model.Job) {
			j.Progress = progressOf(done, total)
			j.SuccessfulUploads = ok
			j.FailedUploads = bad
		})

		if err := sleepCtx(ctx, o.uploadDelay); err != nil {
			return err
		}
	}

	o.complete(ctx, jobID, func(j *model.Job) {
		j.SuccessfulUploads = succeeded
		j.FailedUploads = failed
		j.Message = fmt.Sprintf("Upload completed. Successful: %d, Failed: %d", succeeded, failed)
	})
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// update writes a change to the registry and pushes it to subscribers.
func (o *Orchestrator) update(ctx context.Context, jobID string, fn func(j *model.Job)) *model.Job {
	job, err := o.jobs.Update(context.WithoutCancel(ctx), jobID, fn)
	if err != nil {
		o.logger.Error("Failed to update job", zap.String("job_id", jobID), zap.Error(err))
		return nil
	}
	o.notifier.BroadcastProgress(jobID, job.Progress, job.Status, job.Phase, job.Message)
	return job
}

func (o *Orchestrator) complete(ctx context.Context, jobID string, fn func(j *model.Job)) {
	job := o.update(ctx, jobID, func(j *model.Job) {
		fn(j)
		j.Status = model.JobStatusCompleted
	})
	if job != nil {
		o.notifier.BroadcastComplete(jobID, job)
	}
	o.logger.Info("Job completed", zap.String("job_id", jobID))
}

func (o *Orchestrator) fail(ctx context.Context, jobID, message, code string) {
	o.update(ctx, jobID, func(j *model.Job) {
		j.Status = model.JobStatusFailed
		j.Message = message
	})
	o.notifier.BroadcastError(jobID, code, message)
}
