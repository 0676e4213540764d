package model

// UnknownTrack is the track title used when a source does not carry one.
const UnknownTrack = "Unknown Track"

// AlbumRecord is one artist/album pairing derived from any source
type AlbumRecord struct {
	ArtistName  string `json:"artist_name"`
	AlbumTitle  string `json:"album_title"`
	TrackTitle  string `json:"track_title,omitempty"`
	AlbumArtURL string `json:"album_art_url,omitempty"`
	AlbumID     string `json:"album_id,omitempty"`
}

// Key returns the dedup identity of the record. Matching is exact and case-sensitive.
func (r AlbumRecord) Key() string {
	return r.ArtistName + " - " + r.AlbumTitle
}

// Track returns the track title, or UnknownTrack when the source had none.
func (r AlbumRecord) Track() string {
	if r.TrackTitle == "" {
		return UnknownTrack
	}
	return r.TrackTitle
}

// MissingArtworkEntry is a worklist item: an album Last.fm has no artwork for,
// together with a replacement image and the album's Last.fm page.
type MissingArtworkEntry struct {
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtURL string `json:"album_art_url"`
	LastFMURL   string `json:"lastfm_url"`
	TrackTitle  string `json:"track_title,omitempty"`
	AlbumID     string `json:"album_id,omitempty"`
}

// NewMissingArtworkEntry builds a worklist entry from the originating record.
func NewMissingArtworkEntry(r AlbumRecord, artURL, lastfmURL string) MissingArtworkEntry {
	return MissingArtworkEntry{
		Artist:      r.ArtistName,
		Album:       r.AlbumTitle,
		AlbumArtURL: artURL,
		LastFMURL:   lastfmURL,
		TrackTitle:  r.Track(),
		AlbumID:     r.AlbumID,
	}
}

// Key mirrors AlbumRecord.Key.
func (e MissingArtworkEntry) Key() string {
	return e.Artist + " - " + e.Album
}

// Complete reports whether the entry carries everything the upload phase needs.
func (e MissingArtworkEntry) Complete() bool {
	return e.Artist != "" && e.Album != "" && e.AlbumArtURL != "" && e.LastFMURL != ""
}

// PresenceResult is the outcome of an artwork presence check.
// Err is set when the lookup failed; ArtworkExists is then false.
type PresenceResult struct {
	ArtworkExists bool   `json:"artwork_exists"`
	LastFMURL     string `json:"lastfm_url,omitempty"`
	Err           error  `json:"-"`
}
