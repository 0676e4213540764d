package model

import "time"

// Job is the externally visible state of one artwork job.
// It never carries credentials.
type Job struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Status            JobStatus             `json:"status"`
	Phase             JobPhase              `json:"phase,omitempty"`
	Progress          int                   `json:"progress"`
	Message           string                `json:"message"`
	SourceType        SourceType            `json:"source_type"`
	SourceValue       string                `json:"source_value,omitempty"`
	CheckOnly         bool                  `json:"check_only"`
	TotalAlbums       int                   `json:"total_albums"`
	MissingArtwork    []MissingArtworkEntry `json:"missing_artwork"`
	SuccessfulUploads int                   `json:"successful_uploads"`
	FailedUploads     int                   `json:"failed_uploads"`
	WorklistPath      string                `json:"worklist_path,omitempty"`
	StartTime         time.Time             `json:"start_time"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.MissingArtwork != nil {
		cp.MissingArtwork = make([]MissingArtworkEntry, len(j.MissingArtwork))
		copy(cp.MissingArtwork, j.MissingArtwork)
	}
	return &cp
}

// LastFMSource selects one Last.fm listening list
type LastFMSource struct {
	Type   LastFMSourceKind `json:"type" validate:"required,oneof=recenttracks lovedtracks topalbums"`
	Period LastFMPeriod     `json:"period,omitempty" validate:"omitempty,oneof=overall 7day 1month 3month 6month 12month"`
}

// JobRequest represents the request to start an artwork job
type JobRequest struct {
	SourceType     SourceType     `json:"source_type" validate:"required,oneof=album playlist artist lastfm_username"`
	SourceValue    string         `json:"source_value" validate:"required_unless=SourceType lastfm_username"`
	LastFMUsername string         `json:"lastfm_username,omitempty" validate:"required_if=SourceType lastfm_username"`
	LastFMSources  []LastFMSource `json:"lastfm_sources,omitempty" validate:"required_if=SourceType lastfm_username,dive"`
	CheckOnly      bool           `json:"check_only"`
	LastFMEmail    string         `json:"lastfm_email,omitempty"`
	LastFMPassword string         `json:"lastfm_password,omitempty"`
}

// HasUploadCredentials reports whether both Last.fm login fields were supplied.
func (r *JobRequest) HasUploadCredentials() bool {
	return r.LastFMEmail != "" && r.LastFMPassword != ""
}

// StartJobResponse represents the response after creating a job
type StartJobResponse struct {
	JobID string `json:"job_id"`
}

// JobPayload is the task payload for queued jobs
type JobPayload struct {
	JobID   string     `json:"jobId"`
	Request JobRequest `json:"request"`
}
