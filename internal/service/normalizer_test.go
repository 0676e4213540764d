package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/model"
)

type fakeCatalog struct {
	albumTracks    []client.SpotifyTrack
	playlistTracks []client.SpotifyTrack
	artistName     string
	artistAlbums   []client.SpotifyAlbum
	gotID          string
}

func (f *fakeCatalog) GetAlbumTracks(_ context.Context, id string) ([]client.SpotifyTrack, error) {
	f.gotID = id
	return f.albumTracks, nil
}

func (f *fakeCatalog) GetPlaylistTracks(_ context.Context, id string) ([]client.SpotifyTrack, error) {
	f.gotID = id
	return f.playlistTracks, nil
}

func (f *fakeCatalog) GetArtistAlbums(_ context.Context, id string) (string, []client.SpotifyAlbum, error) {
	f.gotID = id
	return f.artistName, f.artistAlbums, nil
}

type fakeHistory struct {
	lists map[model.LastFMSourceKind][]client.UserAlbum
	fail  map[model.LastFMSourceKind]bool
	calls []model.LastFMSourceKind
}

func (f *fakeHistory) GetUserAlbums(_ context.Context, _ string, kind model.LastFMSourceKind, _ model.LastFMPeriod) ([]client.UserAlbum, error) {
	f.calls = append(f.calls, kind)
	if f.fail[kind] {
		return nil, errors.New("connection reset")
	}
	return f.lists[kind], nil
}

func TestSpotifyID(t *testing.T) {
	tests := []struct {
		kind    model.SourceType
		url     string
		want    string
		wantErr error
	}{
		{model.SourceAlbum, "https://open.spotify.com/album/1A2GTWGtFfWp7KSQTwWOyo", "1A2GTWGtFfWp7KSQTwWOyo", nil},
		{model.SourceAlbum, "https://open.spotify.com/album/1A2GTWGtFfWp7KSQTwWOyo?si=abc", "1A2GTWGtFfWp7KSQTwWOyo", nil},
		{model.SourcePlaylist, "http://open.spotify.com/playlist/37i9dQZF1DX", "37i9dQZF1DX", nil},
		{model.SourceArtist, "https://open.spotify.com/artist/0oSGxfWSnnOXhD2fKuz2Gy", "0oSGxfWSnnOXhD2fKuz2Gy", nil},
		{model.SourceAlbum, "https://open.spotify.com/playlist/37i9dQZF1DX", "", ErrInvalidSourceURL},
		{model.SourceAlbum, "spotify:album:1A2GTWGtFfWp7KSQTwWOyo", "", ErrInvalidSourceURL},
		{model.SourceLastFMUsername, "rj", "", ErrInvalidSourceKind},
	}

	for _, tt := range tests {
		got, err := SpotifyID(tt.kind, tt.url)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}
}

func TestDedup_FirstOccurrenceWins(t *testing.T) {
	in := []model.AlbumRecord{
		{ArtistName: "Joni Mitchell", AlbumTitle: "Blue", TrackTitle: "All I Want"},
		{ArtistName: "Joni Mitchell", AlbumTitle: "Court and Spark"},
		{ArtistName: "Joni Mitchell", AlbumTitle: "Blue", TrackTitle: "River"},
		{ArtistName: "joni mitchell", AlbumTitle: "Blue"},
	}

	out := Dedup(in)

	require.Len(t, out, 3)
	assert.Equal(t, "All I Want", out[0].TrackTitle)
	assert.Equal(t, "Court and Spark", out[1].AlbumTitle)
	// matching is case-sensitive
	assert.Equal(t, "joni mitchell", out[2].ArtistName)
}

func TestNormalize_Album(t *testing.T) {
	album := client.SpotifyAlbum{ID: "alb1", Name: "Blue", Artist: "Joni Mitchell", ImageURL: "https://i.scdn.co/blue"}
	catalog := &fakeCatalog{albumTracks: []client.SpotifyTrack{
		{Name: "All I Want", Artist: "Joni Mitchell", Album: album},
		{Name: "My Old Man", Artist: "Joni Mitchell", Album: album},
	}}
	n := NewNormalizer(catalog, &fakeHistory{}, zap.NewNop())

	var messages []string
	records, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:  model.SourceAlbum,
		SourceValue: "https://open.spotify.com/album/alb1",
	}, func(m string) { messages = append(messages, m) })

	require.NoError(t, err)
	assert.Equal(t, "alb1", catalog.gotID)
	assert.Equal(t, []model.AlbumRecord{{
		ArtistName:  "Joni Mitchell",
		AlbumTitle:  "Blue",
		TrackTitle:  "All I Want",
		AlbumArtURL: "https://i.scdn.co/blue",
		AlbumID:     "alb1",
	}}, records)
	assert.Equal(t, []string{"Fetching data from album..."}, messages)
}

func TestNormalize_PlaylistKeepsOneRecordPerAlbum(t *testing.T) {
	a := client.SpotifyAlbum{ID: "a", Name: "Blue", Artist: "Joni Mitchell"}
	b := client.SpotifyAlbum{ID: "b", Name: "Hejira", Artist: "Joni Mitchell"}
	catalog := &fakeCatalog{playlistTracks: []client.SpotifyTrack{
		{Name: "River", Artist: "Joni Mitchell", Album: a},
		{Name: "Amelia", Artist: "Joni Mitchell", Album: b},
		{Name: "Carey", Artist: "Joni Mitchell", Album: a},
		{Name: "Local file", Artist: "Me", Album: client.SpotifyAlbum{}},
	}}
	n := NewNormalizer(catalog, &fakeHistory{}, zap.NewNop())

	records, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:  model.SourcePlaylist,
		SourceValue: "https://open.spotify.com/playlist/pl1?si=x",
	}, nil)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "River", records[0].TrackTitle)
	assert.Equal(t, "Hejira", records[1].AlbumTitle)
}

func TestNormalize_ArtistRecordsUseSentinelTrack(t *testing.T) {
	catalog := &fakeCatalog{
		artistName: "Joni Mitchell",
		artistAlbums: []client.SpotifyAlbum{
			{ID: "a", Name: "Blue", ImageURL: "https://img/a"},
			{ID: "b", Name: "Hejira", Artist: "Joni Mitchell"},
		},
	}
	n := NewNormalizer(catalog, &fakeHistory{}, zap.NewNop())

	records, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:  model.SourceArtist,
		SourceValue: "https://open.spotify.com/artist/art1",
	}, nil)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Joni Mitchell", records[0].ArtistName)
	assert.Equal(t, model.UnknownTrack, records[0].Track())
	assert.Equal(t, "b", records[1].AlbumID)
}

func TestNormalize_InvalidURL(t *testing.T) {
	catalog := &fakeCatalog{}
	n := NewNormalizer(catalog, &fakeHistory{}, zap.NewNop())

	_, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:  model.SourceAlbum,
		SourceValue: "https://example.com/album/1",
	}, nil)

	assert.ErrorIs(t, err, ErrInvalidSourceURL)
	assert.Empty(t, catalog.gotID)
}

func TestNormalize_LastFMConcatenatesInOrder(t *testing.T) {
	history := &fakeHistory{
		lists: map[model.LastFMSourceKind][]client.UserAlbum{
			model.LastFMTopAlbums: {
				{Artist: "Nick Drake", Album: "Pink Moon"},
				{Artist: "Nick Drake", Album: "Bryter Layter"},
			},
			model.LastFMRecentTracks: {
				{Artist: "Nick Drake", Album: "Pink Moon"},
				{Artist: "Vashti Bunyan", Album: "Just Another Diamond Day"},
			},
		},
		fail: map[model.LastFMSourceKind]bool{model.LastFMLovedTracks: true},
	}
	n := NewNormalizer(&fakeCatalog{}, history, zap.NewNop())

	var messages []string
	records, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:     model.SourceLastFMUsername,
		LastFMUsername: "rj",
		LastFMSources: []model.LastFMSource{
			{Type: model.LastFMTopAlbums, Period: model.PeriodOverall},
			{Type: model.LastFMLovedTracks},
			{Type: model.LastFMRecentTracks},
		},
	}, func(m string) { messages = append(messages, m) })

	require.NoError(t, err)
	var keys []string
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{
		"Nick Drake - Pink Moon",
		"Nick Drake - Bryter Layter",
		"Vashti Bunyan - Just Another Diamond Day",
	}, keys)
	assert.Equal(t, []model.LastFMSourceKind{model.LastFMTopAlbums, model.LastFMLovedTracks, model.LastFMRecentTracks}, history.calls)
	assert.Equal(t, []string{
		"Fetching topalbums for user rj...",
		"Fetching lovedtracks for user rj...",
		"Fetching recenttracks for user rj...",
	}, messages)
}

func TestNormalize_LastFMInvalidKind(t *testing.T) {
	history := &fakeHistory{}
	n := NewNormalizer(&fakeCatalog{}, history, zap.NewNop())

	_, err := n.Normalize(context.Background(), &model.JobRequest{
		SourceType:     model.SourceLastFMUsername,
		LastFMUsername: "rj",
		LastFMSources:  []model.LastFMSource{{Type: model.LastFMTopAlbums}, {Type: "scrobbles"}},
	}, nil)

	assert.ErrorIs(t, err, ErrInvalidSourceKind)
	assert.Empty(t, history.calls)
}
