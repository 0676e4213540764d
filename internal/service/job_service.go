package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/registry"
)

// ErrJobRunning is returned when clearing a job that has not finished.
var ErrJobRunning = errors.New("cannot clear a running job")

// Dispatcher hands a created job to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, req *model.JobRequest) error
}

// JobService handles job creation and bookkeeping for the API.
type JobService struct {
	jobs       registry.Store
	dispatcher Dispatcher
	worklists  *WorklistStore
	logger     *zap.Logger
}

func NewJobService(jobs registry.Store, dispatcher Dispatcher, worklists *WorklistStore, logger *zap.Logger) *JobService {
	return &JobService{
		jobs:       jobs,
		dispatcher: dispatcher,
		worklists:  worklists,
		logger:     logger.Named("jobs"),
	}
}

// StartJob records a new job and dispatches it. The pipeline runs asynchronously.
func (s *JobService) StartJob(ctx context.Context, req *model.JobRequest) (*model.StartJobResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:             jobID,
		Name:           JobName(req),
		Status:         model.JobStatusInitializing,
		Message:        "Job created",
		SourceType:     req.SourceType,
		SourceValue:    req.SourceValue,
		CheckOnly:      req.CheckOnly,
		MissingArtwork: []model.MissingArtworkEntry{},
		StartTime:      now,
		UpdatedAt:      now,
	}
	if req.SourceType == model.SourceLastFMUsername {
		job.SourceValue = req.LastFMUsername
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, jobID, req); err != nil {
		if _, updateErr := s.jobs.Update(ctx, jobID, func(j *model.Job) {
			j.Status = model.JobStatusFailed
			j.Message = fmt.Sprintf("Error: %v", err)
		}); updateErr != nil {
			s.logger.Error("Failed to mark undispatched job as failed",
				zap.String("job_id", jobID),
				zap.NamedError("dispatch_error", err),
				zap.Error(updateErr),
			)
		}
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	s.logger.Info("Job started",
		zap.String("job_id", jobID),
		zap.String("name", job.Name),
		zap.Bool("check_only", req.CheckOnly),
	)
	return &model.StartJobResponse{JobID: jobID}, nil
}

// GetStatus returns the current state of a job.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// ListJobs returns every job, oldest first.
func (s *JobService) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return s.jobs.List(ctx)
}

// ClearJob removes a finished job and its worklist.
func (s *JobService) ClearJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return ErrJobRunning
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	if err := s.worklists.Remove(ctx, jobID); err != nil {
		s.logger.Warn("Failed to remove worklist", zap.String("job_id", jobID), zap.Error(err))
	}

	s.logger.Info("Job cleared", zap.String("job_id", jobID))
	return nil
}

// JobName builds the display name of a job from its source.
func JobName(req *model.JobRequest) string {
	switch req.SourceType {
	case model.SourceAlbum:
		return "Spotify Album: " + spotifyDisplayName(req.SourceValue)
	case model.SourcePlaylist:
		return "Spotify Playlist: " + spotifyDisplayName(req.SourceValue)
	case model.SourceArtist:
		return "Spotify Artist: " + spotifyDisplayName(req.SourceValue)
	case model.SourceLastFMUsername:
		return "Last.fm User: " + req.LastFMUsername
	default:
		return "Unknown Job"
	}
}

// spotifyDisplayName turns the last path segment of a URL into a readable name.
func spotifyDisplayName(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return rawURL
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(last, "-", " "))
}
