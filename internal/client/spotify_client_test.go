package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/config"
	"github.com/artworkup/api/internal/model"
)

type mutableCredentials struct {
	mu    sync.Mutex
	creds model.Credentials
}

func (m *mutableCredentials) Credentials() model.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

func (m *mutableCredentials) set(c model.Credentials) {
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
}

// fakeSpotify serves the token endpoint and a few catalog routes.
type fakeSpotify struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int32
	searchQuery atomic.Value
	artistQuery atomic.Value
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query().Get("q")
		f.searchQuery.Store(q)
		if q == "artist:Joni Mitchell album:Blue" {
			w.Write([]byte(`{"albums":{"items":[{"id":"a1","name":"Blue","images":[
				{"url":"https://i.scdn.co/640","width":640,"height":640},
				{"url":"https://i.scdn.co/300","width":300,"height":300}]}]}}`))
			return
		}
		w.Write([]byte(`{"albums":{"items":[]}}`))
	})
	mux.HandleFunc("/v1/albums/a1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"a1","name":"Blue","artists":[{"name":"Joni Mitchell"}],
			"images":[{"url":"https://i.scdn.co/640"}],
			"tracks":{"items":[
				{"name":"All I Want","artists":[{"name":"Joni Mitchell"}]},
				{"name":"My Old Man","artists":[{"name":"Joni Mitchell"}]}],"next":""}}`))
	})
	mux.HandleFunc("/v1/playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			fmt.Fprintf(w, `{"items":[
				{"track":{"type":"track","name":"River","artists":[{"name":"Joni Mitchell"}],
					"album":{"id":"a1","name":"Blue","artists":[{"name":"Joni Mitchell"}]}}},
				{"track":null}],"next":"%s/v1/playlists/p1/tracks?offset=2&limit=100"}`, f.srv.URL)
			return
		}
		w.Write([]byte(`{"items":[
			{"track":{"type":"track","name":"Amelia","artists":[{"name":"Joni Mitchell"}],
				"album":{"id":"a2","name":"Hejira","artists":[{"name":"Joni Mitchell"}]}}}],"next":""}`))
	})
	mux.HandleFunc("/v1/artists/ar1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ar1","name":"Joni Mitchell"}`))
	})
	mux.HandleFunc("/v1/artists/ar1/albums", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("offset") == "" {
			f.artistQuery.Store(q.Encode())
			fmt.Fprintf(w, `{"items":[{"id":"a1","name":"Blue","artists":[{"name":"Joni Mitchell"}]}],
				"next":"%s/v1/artists/ar1/albums?offset=1&limit=50"}`, f.srv.URL)
			return
		}
		w.Write([]byte(`{"items":[{"id":"a2","name":"Hejira","artists":[{"name":"Joni Mitchell"}]}],"next":""}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSpotify) client(creds CredentialSource) *SpotifyClient {
	return NewSpotifyClient(&config.SpotifyConfig{
		APIURL:   f.srv.URL + "/v1/",
		TokenURL: f.srv.URL + "/api/token",
	}, creds, zap.NewNop())
}

func TestSpotify_NotConfigured(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client(StaticCredentials(model.Credentials{SpotifyClientID: "id"}))

	assert.False(t, c.IsConfigured())
	_, err := c.FindArtwork(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.GetAlbumTracks(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, f.tokenCalls.Load())
}

func TestSpotify_FindArtwork(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client(StaticCredentials(model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "secret"}))
	require.True(t, c.IsConfigured())

	got, err := c.FindArtwork(context.Background(), "Joni Mitchell", "Blue")
	require.NoError(t, err)
	assert.Equal(t, "https://i.scdn.co/640", got)
	assert.Equal(t, "artist:Joni Mitchell album:Blue", f.searchQuery.Load())

	got, err = c.FindArtwork(context.Background(), "Nobody", "Nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSpotify_GetAlbumTracks(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client(StaticCredentials(model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "secret"}))

	tracks, err := c.GetAlbumTracks(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "All I Want", tracks[0].Name)
	assert.Equal(t, "Joni Mitchell", tracks[0].Artist)
	assert.Equal(t, SpotifyAlbum{ID: "a1", Name: "Blue", Artist: "Joni Mitchell", ImageURL: "https://i.scdn.co/640"}, tracks[1].Album)
}

func TestSpotify_GetPlaylistTracks_FollowsPages(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client(StaticCredentials(model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "secret"}))

	tracks, err := c.GetPlaylistTracks(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "River", tracks[0].Name)
	assert.Equal(t, "Blue", tracks[0].Album.Name)
	assert.Equal(t, "Amelia", tracks[1].Name)
	assert.Equal(t, SpotifyAlbum{ID: "a2", Name: "Hejira", Artist: "Joni Mitchell"}, tracks[1].Album)
}

func TestSpotify_GetArtistAlbums_FollowsPages(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client(StaticCredentials(model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "secret"}))

	name, albums, err := c.GetArtistAlbums(context.Background(), "ar1")
	require.NoError(t, err)
	assert.Equal(t, "Joni Mitchell", name)
	require.Len(t, albums, 2)
	assert.Equal(t, "Blue", albums[0].Name)
	assert.Equal(t, "Hejira", albums[1].Name)

	q, err := url.ParseQuery(f.artistQuery.Load().(string))
	require.NoError(t, err)
	assert.Equal(t, "album,single", q.Get("include_groups"))
	assert.Equal(t, "US", q.Get("market"))
	assert.Equal(t, "50", q.Get("limit"))
}

func TestSpotify_RebuildsOnCredentialChange(t *testing.T) {
	f := newFakeSpotify(t)
	creds := &mutableCredentials{creds: model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "one"}}
	c := f.client(creds)

	first, err := c.client()
	require.NoError(t, err)
	again, err := c.client()
	require.NoError(t, err)
	assert.Same(t, first, again)

	creds.set(model.Credentials{SpotifyClientID: "id", SpotifyClientSecret: "two"})
	rebuilt, err := c.client()
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
}
