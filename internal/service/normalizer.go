package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/model"
)

var (
	// ErrInvalidSourceURL is returned when a Spotify URL does not match the expected path shape.
	ErrInvalidSourceURL = errors.New("invalid source url")
	// ErrInvalidSourceKind is returned for an unknown Last.fm list kind or source type.
	ErrInvalidSourceKind = errors.New("invalid source kind")
)

var spotifyURLPatterns = map[model.SourceType]*regexp.Regexp{
	model.SourceAlbum:    regexp.MustCompile(`^https?://open\.spotify\.com/album/([a-zA-Z0-9]+)(\?.*)?`),
	model.SourcePlaylist: regexp.MustCompile(`^https?://open\.spotify\.com/playlist/([a-zA-Z0-9]+)(\?.*)?`),
	model.SourceArtist:   regexp.MustCompile(`^https?://open\.spotify\.com/artist/([a-zA-Z0-9]+)(\?.*)?`),
}

// SpotifyCatalog is the part of the Spotify API the normalizer reads from.
type SpotifyCatalog interface {
	GetAlbumTracks(ctx context.Context, albumID string) ([]client.SpotifyTrack, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]client.SpotifyTrack, error)
	GetArtistAlbums(ctx context.Context, artistID string) (string, []client.SpotifyAlbum, error)
}

// ListeningHistory is the part of the Last.fm API the normalizer reads from.
type ListeningHistory interface {
	GetUserAlbums(ctx context.Context, username string, kind model.LastFMSourceKind, period model.LastFMPeriod) ([]client.UserAlbum, error)
}

// ProgressFunc receives human-readable status lines. It may be nil.
type ProgressFunc func(message string)

func (f ProgressFunc) report(format string, args ...any) {
	if f != nil {
		f(fmt.Sprintf(format, args...))
	}
}

// Normalizer turns job sources into deduplicated album records.
type Normalizer struct {
	spotify SpotifyCatalog
	lastfm  ListeningHistory
	logger  *zap.Logger
}

func NewNormalizer(spotify SpotifyCatalog, lastfm ListeningHistory, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		spotify: spotify,
		lastfm:  lastfm,
		logger:  logger.Named("normalizer"),
	}
}

// SpotifyID extracts the object id from a Spotify URL of the given kind.
func SpotifyID(kind model.SourceType, rawURL string) (string, error) {
	re, ok := spotifyURLPatterns[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceKind, kind)
	}
	m := re.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidSourceURL, rawURL)
	}
	return m[1], nil
}

// Normalize fetches the records for req. The output keeps the provider's
// order, with later duplicates of an artist/album pair removed.
func (n *Normalizer) Normalize(ctx context.Context, req *model.JobRequest, progress ProgressFunc) ([]model.AlbumRecord, error) {
	var (
		records []model.AlbumRecord
		err     error
	)

	switch req.SourceType {
	case model.SourceAlbum:
		progress.report("Fetching data from %s...", req.SourceType)
		records, err = n.fromAlbum(ctx, req.SourceValue)
	case model.SourcePlaylist:
		progress.report("Fetching data from %s...", req.SourceType)
		records, err = n.fromPlaylist(ctx, req.SourceValue)
	case model.SourceArtist:
		progress.report("Fetching data from %s...", req.SourceType)
		records, err = n.fromArtist(ctx, req.SourceValue)
	case model.SourceLastFMUsername:
		records, err = n.fromLastFM(ctx, req.LastFMUsername, req.LastFMSources, progress)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceKind, req.SourceType)
	}
	if err != nil {
		return nil, err
	}

	return Dedup(records), nil
}

func (n *Normalizer) fromAlbum(ctx context.Context, rawURL string) ([]model.AlbumRecord, error) {
	id, err := SpotifyID(model.SourceAlbum, rawURL)
	if err != nil {
		return nil, err
	}
	tracks, err := n.spotify.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, err
	}

	records := make([]model.AlbumRecord, 0, len(tracks))
	for _, t := range tracks {
		records = append(records, model.AlbumRecord{
			ArtistName:  t.Artist,
			AlbumTitle:  t.Album.Name,
			TrackTitle:  t.Name,
			AlbumArtURL: t.Album.ImageURL,
			AlbumID:     t.Album.ID,
		})
	}
	return records, nil
}

// fromPlaylist keeps one record per album, the first track seen for it.
func (n *Normalizer) fromPlaylist(ctx context.Context, rawURL string) ([]model.AlbumRecord, error) {
	id, err := SpotifyID(model.SourcePlaylist, rawURL)
	if err != nil {
		return nil, err
	}
	tracks, err := n.spotify.GetPlaylistTracks(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var records []model.AlbumRecord
	for _, t := range tracks {
		if t.Album.ID == "" || seen[t.Album.ID] {
			continue
		}
		seen[t.Album.ID] = true
		records = append(records, model.AlbumRecord{
			ArtistName:  t.Artist,
			AlbumTitle:  t.Album.Name,
			TrackTitle:  t.Name,
			AlbumArtURL: t.Album.ImageURL,
			AlbumID:     t.Album.ID,
		})
	}
	return records, nil
}

func (n *Normalizer) fromArtist(ctx context.Context, rawURL string) ([]model.AlbumRecord, error) {
	id, err := SpotifyID(model.SourceArtist, rawURL)
	if err != nil {
		return nil, err
	}
	artist, albums, err := n.spotify.GetArtistAlbums(ctx, id)
	if err != nil {
		return nil, err
	}

	records := make([]model.AlbumRecord, 0, len(albums))
	for _, a := range albums {
		name := a.Artist
		if name == "" {
			name = artist
		}
		records = append(records, model.AlbumRecord{
			ArtistName:  name,
			AlbumTitle:  a.Name,
			AlbumArtURL: a.ImageURL,
			AlbumID:     a.ID,
		})
	}
	return records, nil
}

// fromLastFM concatenates the requested lists in order. A list that cannot be
// fetched contributes nothing; an unknown list kind fails the whole call.
func (n *Normalizer) fromLastFM(ctx context.Context, username string, sources []model.LastFMSource, progress ProgressFunc) ([]model.AlbumRecord, error) {
	for _, src := range sources {
		switch src.Type {
		case model.LastFMRecentTracks, model.LastFMLovedTracks, model.LastFMTopAlbums:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidSourceKind, src.Type)
		}
	}

	var records []model.AlbumRecord
	for _, src := range sources {
		progress.report("Fetching %s for user %s...", src.Type, username)

		albums, err := n.lastfm.GetUserAlbums(ctx, username, src.Type, src.Period)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			n.logger.Warn("Failed to fetch Last.fm list",
				zap.String("user", username),
				zap.String("source", string(src.Type)),
				zap.Error(err),
			)
			continue
		}
		for _, a := range albums {
			records = append(records, model.AlbumRecord{
				ArtistName: a.Artist,
				AlbumTitle: a.Album,
			})
		}
	}
	return records, nil
}

// Dedup drops records whose artist/album key was already seen. The first occurrence wins.
func Dedup(records []model.AlbumRecord) []model.AlbumRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.AlbumRecord, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
