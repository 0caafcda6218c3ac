// Package hostcache caches hosted URLs by crop content.
package hostcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/db"
	"github.com/kailas-cloud/lensmatch/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "host_cache:"

// store is the consumer interface for the host cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedHost skips re-uploading byte-identical crops.
type CachedHost struct {
	inner      domain.ImageHost
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "cache" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.ImageHost,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedHost {
	return &CachedHost{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Upload returns the cached URL for identical content or delegates to the inner host.
func (c *CachedHost) Upload(ctx context.Context, localPath, credential string) (string, error) {
	content, err := os.ReadFile(filepath.Clean(localPath))
	if err != nil {
		// Let the inner host report the read failure in its own terms.
		return c.inner.Upload(ctx, localPath, credential) //nolint:wrapcheck // decorator passthrough
	}
	key := cacheKey(content)

	if url, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return url, nil
	}

	c.incCache("miss")

	url, err := c.inner.Upload(ctx, localPath, credential)
	if err != nil {
		return "", fmt.Errorf("upload crop: %w", err)
	}

	c.putToCache(ctx, key, url)
	return url, nil
}

func (c *CachedHost) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("host", result).Inc()
	}
}

func cacheKey(content []byte) string {
	h := sha256.Sum256(content)
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedHost) getFromCache(ctx context.Context, key string) (string, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached upload", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (c *CachedHost) putToCache(ctx context.Context, key, url string) {
	if err := c.store.SetWithTTL(ctx, key, []byte(url), c.ttl); err != nil {
		c.logger.Warn("Failed to cache upload", zap.String("key", key), zap.Error(err))
	}
}
