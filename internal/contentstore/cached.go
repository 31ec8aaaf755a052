package contentstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/domain"
)

// DefaultCacheTTL is how long a resolved reference stays cached.
const DefaultCacheTTL = 24 * time.Hour

// ReferenceCache is a string key/value cache with expiry.
type ReferenceCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedStore caches positive reference lookups of an inner store and
// collapses concurrent lookups for the same file into one.
type CachedStore struct {
	inner  content.Store
	cache  ReferenceCache
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

var _ content.Store = (*CachedStore)(nil)

// NewCachedStore wraps inner with cache. ttl <= 0 uses DefaultCacheTTL.
func NewCachedStore(inner content.Store, cache ReferenceCache, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "content_cache").Logger(),
	}
}

type lookupResult struct {
	ref string
	ok  bool
}

func (s *CachedStore) ExistingReference(ctx context.Context, p *domain.Paper) (string, bool, error) {
	key := content.FileName(p)
	if !content.IsStableName(key) {
		return s.inner.ExistingReference(ctx, p)
	}

	if ref, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("file_name", key).Msg("cache read failed")
	} else if ok {
		return ref, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		ref, ok, err := s.inner.ExistingReference(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			s.remember(ctx, key, ref)
		}
		return lookupResult{ref: ref, ok: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	res := v.(lookupResult)
	return res.ref, res.ok, nil
}

func (s *CachedStore) Persist(ctx context.Context, p *domain.Paper, c *content.Content) (string, error) {
	ref, err := s.inner.Persist(ctx, p, c)
	if err != nil {
		return "", err
	}
	if key := content.FileName(p); content.IsStableName(key) {
		s.remember(ctx, key, ref)
	}
	return ref, nil
}

func (s *CachedStore) Delete(ctx context.Context, p *domain.Paper) (bool, error) {
	key := content.FileName(p)
	if content.IsStableName(key) {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("file_name", key).Msg("cache delete failed")
		}
	}
	return s.inner.Delete(ctx, p)
}

func (s *CachedStore) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := s.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats["cache_ttl_seconds"] = int(s.ttl.Seconds())
	return stats, nil
}

func (s *CachedStore) remember(ctx context.Context, key, ref string) {
	if err := s.cache.Set(ctx, key, ref, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("file_name", key).Msg("cache write failed")
	}
}
