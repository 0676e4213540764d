package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/config"
)

// artworkSizeSuffix matches the size template at the end of iTunes artwork URLs.
var artworkSizeSuffix = regexp.MustCompile(`/[0-9]+x[0-9]+bb\.jpg$`)

// largestArtworkSuffix asks the iTunes CDN for the biggest rendition it has.
const largestArtworkSuffix = "/100000x100000bb.jpg"

// ITunesClient searches the iTunes catalog for album artwork
type ITunesClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewITunesClient creates a new iTunes search client
func NewITunesClient(cfg *config.ITunesConfig, logger *zap.Logger) *ITunesClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ITunesClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger.Named("itunes"),
	}
}

func (c *ITunesClient) Name() string { return "itunes" }

// FindArtwork searches by "<album> <artist>" and returns the first result's
// artwork URL rewritten to the largest size. "" means no result.
func (c *ITunesClient) FindArtwork(ctx context.Context, artist, album string) (string, error) {
	q := url.Values{}
	q.Set("term", fmt.Sprintf("%s %s", album, artist))
	q.Set("entity", "album")
	q.Set("limit", "1")

	body, err := getBody(ctx, c.httpClient, c.logger, "itunes", c.baseURL+"/search?"+q.Encode())
	if err != nil {
		return "", err
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("resultCount").Int() == 0 {
		return "", nil
	}
	artwork := doc.Get("results.0.artworkUrl100").String()
	if artwork == "" {
		return "", nil
	}
	return LargestArtworkURL(artwork), nil
}

// LargestArtworkURL rewrites an iTunes thumbnail URL to request the largest size.
func LargestArtworkURL(thumbnail string) string {
	return artworkSizeSuffix.ReplaceAllString(thumbnail, largestArtworkSuffix)
}
