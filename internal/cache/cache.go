// Package cache memoizes sentiment lookups per keyword set and time bucket.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"polysignal/internal/metrics"
	"polysignal/internal/model"
)

// Fetcher is the sentiment lookup being cached.
type Fetcher interface {
	FetchArticles(ctx context.Context, keywords []string, maxAge time.Duration) ([]model.ArticleSignal, error)
}

// CachedSource wraps a Fetcher with a sharded memory tier, an optional shared
// Store and per-key deduplication of in-flight lookups. Successful results,
// empty ones included, are cached until the end of their time bucket. Errors
// are never cached.
type CachedSource struct {
	next    Fetcher
	window  time.Duration
	memory  *Memory
	store   Store
	group   singleflight.Group
	metrics *metrics.Recorder
	now     func() time.Time
}

type Option func(*CachedSource)

func WithStore(s Store) Option {
	return func(c *CachedSource) { c.store = s }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(c *CachedSource) { c.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *CachedSource) { c.now = now }
}

func NewCachedSource(next Fetcher, window time.Duration, opts ...Option) *CachedSource {
	c := &CachedSource{
		next:   next,
		window: window,
		memory: NewMemory(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache key for a lookup. Keywords are lowercased and trimmed
// but keep their order.
func Key(keywords []string, maxAge time.Duration, bucket time.Time) string {
	norm := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			norm = append(norm, kw)
		}
	}
	return fmt.Sprintf("%d|%s|%s", bucket.Unix(), maxAge, strings.Join(norm, " "))
}

// FetchArticles returns the cached result for the current bucket or performs
// the lookup. The returned slice is shared and must not be modified.
func (c *CachedSource) FetchArticles(ctx context.Context, keywords []string, maxAge time.Duration) ([]model.ArticleSignal, error) {
	now := c.now()
	bucket := now.Truncate(c.window)
	expiresAt := bucket.Add(c.window)
	key := Key(keywords, maxAge, bucket)

	if articles, ok := c.memory.Get(key, now); ok {
		c.metrics.RecordCache("memory", true)
		return articles, nil
	}
	c.metrics.RecordCache("memory", false)

	v, err, shared := c.group.Do(key, func() (any, error) {
		if articles, ok := c.fromStore(ctx, key); ok {
			c.memory.Set(key, articles, expiresAt, now)
			return articles, nil
		}

		articles, err := c.next.FetchArticles(ctx, keywords, maxAge)
		if err != nil {
			return nil, err
		}
		if articles == nil {
			articles = []model.ArticleSignal{}
		}

		c.memory.Set(key, articles, expiresAt, now)
		if c.store != nil {
			if err := c.store.Set(ctx, key, articles, expiresAt.Sub(now)); err != nil {
				slog.Warn("sentiment cache store write failed", "store", c.store.Name(), "error", err)
			}
		}
		return articles, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("sentiment lookup shared", "keywords", keywords)
	}
	return v.([]model.ArticleSignal), nil
}

// fromStore treats every store failure as a miss.
func (c *CachedSource) fromStore(ctx context.Context, key string) ([]model.ArticleSignal, bool) {
	if c.store == nil {
		return nil, false
	}
	articles, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("sentiment cache store read failed", "store", c.store.Name(), "error", err)
		ok = false
	}
	c.metrics.RecordCache(c.store.Name(), ok)
	return articles, ok
}
