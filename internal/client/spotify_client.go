package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/artworkup/api/internal/config"
)

// Page sizes and filters used when walking Spotify listings
const (
	playlistPageSize = 100
	artistPageSize   = 50
	artistMarket     = "US"
)

// SpotifyAlbum is the album data the pipeline needs
type SpotifyAlbum struct {
	ID       string
	Name     string
	Artist   string
	ImageURL string
}

// SpotifyTrack is a track together with its album
type SpotifyTrack struct {
	Name   string
	Artist string
	Album  SpotifyAlbum
}

// SpotifyClient wraps the Spotify Web API using the client credentials flow.
// The underlying API client is rebuilt when the configured credentials change.
type SpotifyClient struct {
	creds    CredentialSource
	apiURL   string
	tokenURL string
	logger   *zap.Logger

	mu       sync.Mutex
	api      *spotify.Client
	clientID string
	secret   string
}

// NewSpotifyClient creates a new Spotify API client
func NewSpotifyClient(cfg *config.SpotifyConfig, creds CredentialSource, logger *zap.Logger) *SpotifyClient {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	return &SpotifyClient{
		creds:    creds,
		apiURL:   cfg.APIURL,
		tokenURL: tokenURL,
		logger:   logger.Named("spotify"),
	}
}

// IsConfigured returns true if client credentials are available
func (c *SpotifyClient) IsConfigured() bool {
	creds := c.creds.Credentials()
	return creds.SpotifyClientID != "" && creds.SpotifyClientSecret != ""
}

func (c *SpotifyClient) Name() string { return "spotify" }

func (c *SpotifyClient) client() (*spotify.Client, error) {
	creds := c.creds.Credentials()
	if creds.SpotifyClientID == "" || creds.SpotifyClientSecret == "" {
		return nil, ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api != nil && c.clientID == creds.SpotifyClientID && c.secret == creds.SpotifyClientSecret {
		return c.api, nil
	}

	cc := &clientcredentials.Config{
		ClientID:     creds.SpotifyClientID,
		ClientSecret: creds.SpotifyClientSecret,
		TokenURL:     c.tokenURL,
	}
	// The token source outlives any single request, so it gets a background context.
	httpClient := cc.Client(context.Background())

	var opts []spotify.ClientOption
	if c.apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.apiURL))
	}
	c.api = spotify.New(httpClient, opts...)
	c.clientID = creds.SpotifyClientID
	c.secret = creds.SpotifyClientSecret
	c.logger.Info("Spotify client initialized")
	return c.api, nil
}

// GetAlbumTracks returns every track of an album, in album order.
func (c *SpotifyClient) GetAlbumTracks(ctx context.Context, albumID string) ([]SpotifyTrack, error) {
	api, err := c.client()
	if err != nil {
		return nil, err
	}

	full, err := api.GetAlbum(ctx, spotify.ID(albumID))
	if err != nil {
		return nil, fmt.Errorf("failed to get album %s: %w", albumID, err)
	}
	album := toAlbum(full.SimpleAlbum)

	var tracks []SpotifyTrack
	page := &full.Tracks
	for {
		for _, t := range page.Tracks {
			tracks = append(tracks, SpotifyTrack{
				Name:   t.Name,
				Artist: firstArtist(t.Artists),
				Album:  album,
			})
		}
		if err := api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return nil, fmt.Errorf("failed to page album %s: %w", albumID, err)
		}
	}

	c.logger.Debug("Fetched album tracks", zap.String("album", album.Name), zap.Int("tracks", len(tracks)))
	return tracks, nil
}

// GetPlaylistTracks returns every track of a playlist, following pagination.
// Episodes and unavailable items are skipped.
func (c *SpotifyClient) GetPlaylistTracks(ctx context.Context, playlistID string) ([]SpotifyTrack, error) {
	api, err := c.client()
	if err != nil {
		return nil, err
	}

	page, err := api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(playlistPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
	}

	var tracks []SpotifyTrack
	for {
		for _, item := range page.Items {
			t := item.Track.Track
			if t == nil {
				continue
			}
			tracks = append(tracks, SpotifyTrack{
				Name:   t.Name,
				Artist: firstArtist(t.Artists),
				Album:  toAlbum(t.Album),
			})
		}
		if err := api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return nil, fmt.Errorf("failed to page playlist %s: %w", playlistID, err)
		}
	}

	c.logger.Debug("Fetched playlist tracks", zap.String("playlist", playlistID), zap.Int("tracks", len(tracks)))
	return tracks, nil
}

// GetArtistAlbums returns the artist's name and their albums and singles in the US market.
func (c *SpotifyClient) GetArtistAlbums(ctx context.Context, artistID string) (string, []SpotifyAlbum, error) {
	api, err := c.client()
	if err != nil {
		return "", nil, err
	}

	artist, err := api.GetArtist(ctx, spotify.ID(artistID))
	if err != nil {
		return "", nil, fmt.Errorf("failed to get artist %s: %w", artistID, err)
	}

	page, err := api.GetArtistAlbums(ctx, spotify.ID(artistID),
		[]spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle},
		spotify.Market(artistMarket),
		spotify.Limit(artistPageSize),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get albums for artist %s: %w", artistID, err)
	}

	var albums []SpotifyAlbum
	for {
		for _, a := range page.Albums {
			albums = append(albums, toAlbum(a))
		}
		if err := api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return "", nil, fmt.Errorf("failed to page albums for artist %s: %w", artistID, err)
		}
	}

	c.logger.Info("Fetched artist albums", zap.String("artist", artist.Name), zap.Int("albums", len(albums)))
	return artist.Name, albums, nil
}

// FindArtwork searches the catalog for artist+album and returns the first
// result's largest image. "" means no result.
func (c *SpotifyClient) FindArtwork(ctx context.Context, artist, album string) (string, error) {
	api, err := c.client()
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf("artist:%s album:%s", artist, album)
	res, err := api.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(1))
	if err != nil {
		return "", fmt.Errorf("spotify search failed: %w", err)
	}
	if res.Albums == nil || len(res.Albums.Albums) == 0 {
		return "", nil
	}
	return firstImage(res.Albums.Albums[0].Images), nil
}

func toAlbum(a spotify.SimpleAlbum) SpotifyAlbum {
	return SpotifyAlbum{
		ID:       string(a.ID),
		Name:     a.Name,
		Artist:   firstArtist(a.Artists),
		ImageURL: firstImage(a.Images),
	}
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

// Spotify lists images widest first.
func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
