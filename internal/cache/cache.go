// Package cache memoizes expensive reasoning-service results by content.
//
// A Cache sits in front of a byte-oriented Store. Values are JSON encoded,
// keys are content addressed (see Key). The cache is a pure optimization:
// any failure of the backing store is logged, counted and treated as a miss,
// never returned to the caller.
//
// Example usage:
//
//	c := cache.New(cache.NewMemoryStore(10000, cache.DefaultTTL), cache.WithLogger(logger))
//	chunks, err := cache.GetOrCompute(ctx, c, cache.Key("chunk", args), func(ctx context.Context) ([]Chunk, error) {
//	    return svc.Chunk(ctx, prompt, statics)
//	})
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Store is a backing store for cache entries.
//
// Get reports a missing or expired key as (nil, false, nil). Errors are
// reserved for an unreachable or failing store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Close() error
}

// sizer is implemented by stores that can report their entry count cheaply.
type sizer interface {
	Len() int
}

// Cache memoizes values in a Store.
//
// A nil *Cache is valid and caches nothing.
type Cache struct {
	store   Store
	ttl     time.Duration
	logger  *logging.Logger
	metrics *Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the expiry applied to new entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger used for backing-store failures.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus hit/miss/error accounting.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the entry for key into dst. It returns false on a miss, on a
// store failure and on an undecodable entry.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.store == nil {
		return false
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed, continuing uncached",
			zap.String("key", key),
			zap.Error(err),
		)
		c.metrics.recordError("get")
		c.metrics.recordMiss()
		return false
	}
	if !ok {
		c.metrics.recordMiss()
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn(ctx, "discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		c.metrics.recordError("decode")
		c.metrics.recordMiss()
		return false
	}

	c.metrics.recordHit()
	return true
}

// Set stores value under key. Concurrent writers of one key are
// last-write-wins.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.store == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn(ctx, "cache value not encodable",
			zap.String("key", key),
			zap.Error(err),
		)
		c.metrics.recordError("encode")
		return
	}

	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn(ctx, "cache write failed, continuing uncached",
			zap.String("key", key),
			zap.Error(err),
		)
		c.metrics.recordError("set")
		return
	}
	c.updateSize()
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	if err := c.store.Clear(ctx); err != nil {
		c.metrics.recordError("clear")
		return err
	}
	c.updateSize()
	return nil
}

// Close releases the backing store.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *Cache) updateSize() {
	if s, ok := c.store.(sizer); ok {
		c.metrics.setSize(s.Len())
	}
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result. Errors from compute are returned and never cached. Two
// concurrent callers with the same key may both run compute.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}

	c.Set(ctx, key, value)
	return value, nil
}
