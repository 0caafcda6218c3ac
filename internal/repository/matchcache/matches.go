// Package matchcache caches visual search results per hosted URL and country.
package matchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/db"
	"github.com/kailas-cloud/lensmatch/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "match_cache:"

// store is the consumer interface for the match cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedSearcher caches successful search results. Failures are never cached.
type CachedSearcher struct {
	inner      domain.VisualSearcher
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
func New(
	inner domain.VisualSearcher,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedSearcher {
	return &CachedSearcher{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Search returns cached matches or delegates to the inner searcher.
// The credential is not part of the key: results do not depend on it.
func (c *CachedSearcher) Search(ctx context.Context, q domain.SearchQuery) ([]domain.VisualMatch, error) {
	key := cacheKey(q)

	if matches, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return matches, nil
	}

	c.incCache("miss")

	matches, err := c.inner.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search matches: %w", err)
	}

	c.putToCache(ctx, key, matches)
	return matches, nil
}

func (c *CachedSearcher) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("matches", result).Inc()
	}
}

func cacheKey(q domain.SearchQuery) string {
	h := sha256.Sum256([]byte(q.Country + "\x00" + q.ImageURL))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedSearcher) getFromCache(ctx context.Context, key string) ([]domain.VisualMatch, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached matches", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	matches := []domain.VisualMatch{}
	if err := json.Unmarshal(data, &matches); err != nil {
		c.logger.Warn("Failed to parse cached matches", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return matches, true
}

func (c *CachedSearcher) putToCache(ctx context.Context, key string, matches []domain.VisualMatch) {
	if matches == nil {
		matches = []domain.VisualMatch{}
	}
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.Warn("Failed to encode matches", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache matches", zap.String("key", key), zap.Error(err))
	}
}
