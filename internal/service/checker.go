package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/retry"
)

// AlbumLookup is the Last.fm album.getInfo call.
type AlbumLookup interface {
	GetAlbumInfo(ctx context.Context, artist, album string) (*client.AlbumInfo, error)
}

// Checker asks Last.fm whether an album already has artwork.
type Checker struct {
	lookup      AlbumLookup
	policy      retry.Policy
	requireHint bool
	logger      *zap.Logger
}

// NewChecker creates a checker. With requireHint set, records that arrive
// without an artwork URL are skipped instead of resolved.
func NewChecker(lookup AlbumLookup, policy retry.Policy, requireHint bool, logger *zap.Logger) *Checker {
	return &Checker{
		lookup:      lookup,
		policy:      policy,
		requireHint: requireHint,
		logger:      logger.Named("checker"),
	}
}

// ShouldCheck reports whether rec carries enough data to be checked.
func (c *Checker) ShouldCheck(rec model.AlbumRecord) bool {
	if rec.ArtistName == "" || rec.AlbumTitle == "" {
		return false
	}
	if c.requireHint && rec.AlbumArtURL == "" {
		return false
	}
	return true
}

// Check looks the album up. It never fails: lookup errors are reported in
// the result with ArtworkExists false, so the album is treated as missing.
func (c *Checker) Check(ctx context.Context, rec model.AlbumRecord) model.PresenceResult {
	info, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*client.AlbumInfo, error) {
		return c.lookup.GetAlbumInfo(ctx, rec.ArtistName, rec.AlbumTitle)
	}, nil)
	if err != nil {
		c.logger.Warn("Artwork check failed",
			zap.String("artist", rec.ArtistName),
			zap.String("album", rec.AlbumTitle),
			zap.Error(err),
		)
		return model.PresenceResult{Err: err}
	}

	return model.PresenceResult{
		ArtworkExists: info.HasArtwork(),
		LastFMURL:     info.URL,
	}
}
