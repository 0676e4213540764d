package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/artworkup/api/internal/config"
	"github.com/artworkup/api/internal/model"
)

// lastfmErrAlbumNotFound is the API error code for unknown artist/album pairs.
const lastfmErrAlbumNotFound = 6

// userListLimit is the page size requested for user listening lists.
const userListLimit = 200

// LastFMClient talks to the Last.fm web service. Every call waits on a rate
// gate shared by all jobs using this client.
type LastFMClient struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialSource
	checkGate  *rate.Limiter
	listGate   *rate.Limiter
	logger     *zap.Logger
}

// AlbumImage is one entry of an album's image list
type AlbumImage struct {
	Size string
	URL  string
}

// AlbumInfo is the part of album.getInfo the pipeline uses
type AlbumInfo struct {
	Found  bool
	URL    string
	Images []AlbumImage
}

// HasArtwork reports whether any image entry carries a URL.
func (a *AlbumInfo) HasArtwork() bool {
	for _, img := range a.Images {
		if img.URL != "" {
			return true
		}
	}
	return false
}

// UserAlbum is an artist/album pair taken from a user's listening list
type UserAlbum struct {
	Artist string
	Album  string
}

// APIError is an error document returned by Last.fm
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// NewLastFMClient creates a new Last.fm API client
func NewLastFMClient(cfg *config.LastFMConfig, creds CredentialSource, logger *zap.Logger) *LastFMClient {
	return &LastFMClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		creds:      creds,
		checkGate:  newGate(cfg.CheckRatePerSec),
		listGate:   newGate(cfg.ListRatePerSec),
		logger:     logger.Named("lastfm"),
	}
}

// newGate allows one call per 1/perSec seconds with no bursting.
func newGate(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

// IsConfigured returns true if an API key is available
func (c *LastFMClient) IsConfigured() bool {
	return c.creds.Credentials().LastFMAPIKey != ""
}

// GetAlbumInfo looks up an album by artist and title.
// An unknown album is not an error: Found is false.
func (c *LastFMClient) GetAlbumInfo(ctx context.Context, artist, album string) (*AlbumInfo, error) {
	if err := c.checkGate.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("method", "album.getInfo")
	params.Set("artist", artist)
	params.Set("album", album)

	doc, err := c.call(ctx, params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == lastfmErrAlbumNotFound {
			return &AlbumInfo{}, nil
		}
		return nil, err
	}

	node := doc.Get("album")
	if !node.Exists() {
		return &AlbumInfo{}, nil
	}

	info := &AlbumInfo{
		Found: true,
		URL:   node.Get("url").String(),
	}
	for _, img := range listOf(node.Get("image")) {
		info.Images = append(info.Images, AlbumImage{
			Size: img.Get("size").String(),
			URL:  textOf(img),
		})
	}
	return info, nil
}

// GetUserAlbums returns the artist/album pairs from one of a user's listening lists.
func (c *LastFMClient) GetUserAlbums(ctx context.Context, username string, kind model.LastFMSourceKind, period model.LastFMPeriod) ([]UserAlbum, error) {
	params := url.Values{}
	var listKey string
	switch kind {
	case model.LastFMRecentTracks:
		params.Set("method", "user.getrecenttracks")
		listKey = "recenttracks.track"
	case model.LastFMLovedTracks:
		params.Set("method", "user.getlovedtracks")
		listKey = "lovedtracks.track"
	case model.LastFMTopAlbums:
		params.Set("method", "user.gettopalbums")
		listKey = "topalbums.album"
		if period != "" {
			params.Set("period", string(period))
		}
	default:
		return nil, fmt.Errorf("invalid source specified: %q", kind)
	}
	params.Set("user", username)
	params.Set("limit", fmt.Sprintf("%d", userListLimit))

	if err := c.listGate.Wait(ctx); err != nil {
		return nil, err
	}

	doc, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var albums []UserAlbum
	for _, item := range listOf(doc.Get(listKey)) {
		album := item.Get("name").String()
		if t, ok := item.Get("album").Map()["#text"]; ok {
			album = t.String()
		}
		artist := textOr(item.Get("artist"), "name")
		if album == "" || artist == "" {
			continue
		}
		albums = append(albums, UserAlbum{Artist: artist, Album: album})
	}
	return albums, nil
}

// call issues a GET with the api key and json format and returns the parsed document.
func (c *LastFMClient) call(ctx context.Context, params url.Values) (gjson.Result, error) {
	key := c.creds.Credentials().LastFMAPIKey
	if key == "" {
		return gjson.Result{}, ErrNotConfigured
	}
	params.Set("api_key", key)
	params.Set("format", "json")

	body, err := getBody(ctx, c.httpClient, c.logger, "lastfm", c.baseURL+"?"+params.Encode())
	if err != nil {
		// Last.fm also reports API errors with 4xx statuses
		var se *StatusError
		if errors.As(err, &se) {
			if apiErr := parseAPIError(gjson.Parse(se.Body)); apiErr != nil {
				return gjson.Result{}, apiErr
			}
		}
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid json from lastfm: %s", truncate(string(body)))
	}
	doc := gjson.ParseBytes(body)
	if apiErr := parseAPIError(doc); apiErr != nil {
		return gjson.Result{}, apiErr
	}
	return doc, nil
}

func parseAPIError(doc gjson.Result) *APIError {
	code := doc.Get("error")
	if !code.Exists() {
		return nil
	}
	return &APIError{Code: int(code.Int()), Message: doc.Get("message").String()}
}

// listOf normalizes Last.fm's habit of returning a bare object instead of a
// one-element array.
func listOf(r gjson.Result) []gjson.Result {
	switch {
	case r.IsArray():
		return r.Array()
	case r.IsObject():
		return []gjson.Result{r}
	default:
		return nil
	}
}

// textOf returns the "#text" member of an object node.
func textOf(r gjson.Result) string {
	return r.Map()["#text"].String()
}

// textOr returns "#text" when present, otherwise the fallback member.
// Plain string nodes are returned as-is.
func textOr(r gjson.Result, fallback string) string {
	if r.Type == gjson.String {
		return r.String()
	}
	m := r.Map()
	if t, ok := m["#text"]; ok {
		return t.String()
	}
	return m[fallback].String()
}
