package games

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	games   []Game
	expires time.Time
}

// CachingCatalog wraps another Catalog with a TTL cache. Concurrent misses
// for the same key share one upstream call.
type CachingCatalog struct {
	base  Catalog
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingCatalog returns a Catalog that caches lookups for ttl.
func NewCachingCatalog(base Catalog, ttl time.Duration) *CachingCatalog {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingCatalog{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// Search returns cached search results when available.
func (c *CachingCatalog) Search(ctx context.Context, query string) ([]Game, error) {
	key := "search:" + strings.ToLower(strings.TrimSpace(query))
	return c.lookup(ctx, key, func(ctx context.Context) ([]Game, error) {
		return c.base.Search(ctx, query)
	})
}

// Popular returns the cached popular list when available.
func (c *CachingCatalog) Popular(ctx context.Context) ([]Game, error) {
	return c.lookup(ctx, "popular", c.base.Popular)
}

func (c *CachingCatalog) lookup(ctx context.Context, key string, fetch func(context.Context) ([]Game, error)) ([]Game, error) {
	if c == nil || c.base == nil {
		return nil, ErrCatalogUnavailable
	}

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expires) {
		return entry.games, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		games, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = cacheEntry{games: games, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return games, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Game), nil
}
