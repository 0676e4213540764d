package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/config"
	"github.com/artworkup/api/internal/model"
)

func newTestLastFM(t *testing.T, handler http.HandlerFunc, ratePerSec float64) *LastFMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.LastFMConfig{
		BaseURL:         srv.URL + "/2.0/",
		CheckRatePerSec: ratePerSec,
		ListRatePerSec:  ratePerSec,
	}
	return NewLastFMClient(cfg, StaticCredentials{LastFMAPIKey: "key"}, zap.NewNop())
}

func TestLastFM_GetAlbumInfo(t *testing.T) {
	tests := []struct {
		desc        string
		body        string
		wantFound   bool
		wantArtwork bool
		wantURL     string
	}{
		{
			desc:      "all image texts empty",
			body:      `{"album":{"url":"https://www.last.fm/music/A/_/B","image":[{"#text":"","size":"small"},{"#text":"","size":"large"}]}}`,
			wantFound: true,
			wantURL:   "https://www.last.fm/music/A/_/B",
		},
		{
			desc:        "one image present",
			body:        `{"album":{"url":"https://www.last.fm/music/A/_/B","image":[{"#text":"","size":"small"},{"#text":"https://img/x.png","size":"large"}]}}`,
			wantFound:   true,
			wantArtwork: true,
			wantURL:     "https://www.last.fm/music/A/_/B",
		},
		{
			desc: "no album node",
			body: `{}`,
		},
		{
			desc: "album not found error",
			body: `{"error":6,"message":"Album not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "album.getInfo", r.URL.Query().Get("method"))
				assert.Equal(t, "key", r.URL.Query().Get("api_key"))
				assert.Equal(t, "json", r.URL.Query().Get("format"))
				w.Write([]byte(tt.body))
			}, 100)

			info, err := c.GetAlbumInfo(context.Background(), "A", "B")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, info.Found)
			assert.Equal(t, tt.wantArtwork, info.HasArtwork())
			assert.Equal(t, tt.wantURL, info.URL)
		})
	}
}

func TestLastFM_GetAlbumInfo_TransportError(t *testing.T) {
	c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 100)

	_, err := c.GetAlbumInfo(context.Background(), "A", "B")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestLastFM_GetAlbumInfo_APIErrorWithStatus(t *testing.T) {
	c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":29,"message":"Rate limit exceeded"}`))
	}, 100)

	_, err := c.GetAlbumInfo(context.Background(), "A", "B")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 29, apiErr.Code)
}

func TestLastFM_NotConfigured(t *testing.T) {
	c := NewLastFMClient(&config.LastFMConfig{BaseURL: "http://unused", CheckRatePerSec: 1, ListRatePerSec: 1}, StaticCredentials{}, zap.NewNop())
	assert.False(t, c.IsConfigured())

	_, err := c.GetAlbumInfo(context.Background(), "A", "B")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLastFM_GetUserAlbums(t *testing.T) {
	responses := map[string]string{
		"user.getrecenttracks": `{"recenttracks":{"track":[
			{"name":"Song 1","artist":{"#text":"Artist 1"},"album":{"#text":"Album 1"}},
			{"name":"Song 2","artist":{"#text":"Artist 2"},"album":{"#text":""}}
		]}}`,
		"user.getlovedtracks": `{"lovedtracks":{"track":{"name":"Loved","artist":{"name":"Artist 3"}}}}`,
		"user.gettopalbums": `{"topalbums":{"album":[{"name":"Top","artist":{"name":"Artist 4"}}]}}`,
	}

	var mu sync.Mutex
	var periods []string
	c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "200", q.Get("limit"))
		assert.Equal(t, "rj", q.Get("user"))
		mu.Lock()
		periods = append(periods, q.Get("period"))
		mu.Unlock()
		w.Write([]byte(responses[q.Get("method")]))
	}, 100)

	ctx := context.Background()

	recent, err := c.GetUserAlbums(ctx, "rj", model.LastFMRecentTracks, model.Period7Day)
	require.NoError(t, err)
	assert.Equal(t, []UserAlbum{{Artist: "Artist 1", Album: "Album 1"}}, recent)

	// loved tracks carry no album, so the track name stands in
	loved, err := c.GetUserAlbums(ctx, "rj", model.LastFMLovedTracks, "")
	require.NoError(t, err)
	assert.Equal(t, []UserAlbum{{Artist: "Artist 3", Album: "Loved"}}, loved)

	top, err := c.GetUserAlbums(ctx, "rj", model.LastFMTopAlbums, model.Period1Month)
	require.NoError(t, err)
	assert.Equal(t, []UserAlbum{{Artist: "Artist 4", Album: "Top"}}, top)

	// period is only sent for top albums
	assert.Equal(t, []string{"", "", "1month"}, periods)
}

func TestLastFM_GetUserAlbums_InvalidKind(t *testing.T) {
	c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, 100)

	_, err := c.GetUserAlbums(context.Background(), "rj", "scrobbles", "")
	assert.Error(t, err)
}

func TestLastFM_RateGateIsShared(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.Write([]byte(`{}`))
	}, 20) // one call per 50ms

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetAlbumInfo(context.Background(), "A", "B")
		}()
	}
	wg.Wait()

	require.Len(t, stamps, 4)
	// 4 calls through a 20/s gate with burst 1 need at least ~150ms
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[0]), 120*time.Millisecond)
}
