package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/retry"
)

// ArtworkProvider finds an image URL for an album. "" with a nil error means
// the provider has no match.
type ArtworkProvider interface {
	Name() string
	FindArtwork(ctx context.Context, artist, album string) (string, error)
}

// cachedProvider memoizes one provider's answers, including misses.
type cachedProvider struct {
	provider ArtworkProvider
	cache    *lru.Cache[string, string]
}

// Resolver queries providers in order and returns the first URL found.
// It is shared by all jobs.
type Resolver struct {
	providers []cachedProvider
	policy    retry.Policy
	logger    *zap.Logger
}

// NewResolver builds a resolver with one LRU cache of cacheSize entries per provider.
func NewResolver(cacheSize int, policy retry.Policy, logger *zap.Logger, providers ...ArtworkProvider) (*Resolver, error) {
	r := &Resolver{
		policy: policy,
		logger: logger.Named("resolver"),
	}
	for _, p := range providers {
		cache, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s cache: %w", p.Name(), err)
		}
		r.providers = append(r.providers, cachedProvider{provider: p, cache: cache})
	}
	return r, nil
}

func cacheKey(artist, album string) string {
	return artist + "\x00" + album
}

// Resolve returns the first artwork URL any provider knows, or "".
func (r *Resolver) Resolve(ctx context.Context, artist, album string) string {
	key := cacheKey(artist, album)

	for _, p := range r.providers {
		if url, ok := p.cache.Get(key); ok {
			if url != "" {
				return url
			}
			continue
		}

		url, err := retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
			return p.provider.FindArtwork(ctx, artist, album)
		}, nil)
		if err != nil {
			// errors are not memoized so the next job asks again
			r.logger.Warn("Artwork provider failed",
				zap.String("provider", p.provider.Name()),
				zap.String("artist", artist),
				zap.String("album", album),
				zap.Error(err),
			)
			continue
		}

		p.cache.Add(key, url)
		if url != "" {
			r.logger.Debug("Artwork resolved",
				zap.String("provider", p.provider.Name()),
				zap.String("artist", artist),
				zap.String("album", album),
			)
			return url
		}
	}
	return ""
}
