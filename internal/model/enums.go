package model

// Job statuses
type JobStatus string

const (
	JobStatusInitializing JobStatus = "initializing"
	JobStatusRunning      JobStatus = "running"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// IsTerminal reports whether the job has finished, successfully or not.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job phases, only meaningful while a job is running
type JobPhase string

const (
	PhaseSearching JobPhase = "searching"
	PhaseChecking  JobPhase = "checking"
	PhaseUploading JobPhase = "uploading"
)

// Source types accepted by the job API
type SourceType string

const (
	SourceAlbum          SourceType = "album"
	SourcePlaylist       SourceType = "playlist"
	SourceArtist         SourceType = "artist"
	SourceLastFMUsername SourceType = "lastfm_username"
)

// Last.fm listening history kinds
type LastFMSourceKind string

const (
	LastFMRecentTracks LastFMSourceKind = "recenttracks"
	LastFMLovedTracks  LastFMSourceKind = "lovedtracks"
	LastFMTopAlbums    LastFMSourceKind = "topalbums"
)

// Last.fm chart periods for top albums
type LastFMPeriod string

const (
	PeriodOverall LastFMPeriod = "overall"
	Period7Day    LastFMPeriod = "7day"
	Period1Month  LastFMPeriod = "1month"
	Period3Month  LastFMPeriod = "3month"
	Period6Month  LastFMPeriod = "6month"
	Period12Month LastFMPeriod = "12month"
)
