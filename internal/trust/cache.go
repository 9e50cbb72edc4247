package trust

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/idframe/idframe/internal/metrics"
	"github.com/idframe/idframe/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// LoaderFunc builds a validator for an issuer. Pure with respect to its key:
// racing loads for the same issuer may safely replace each other's result.
type LoaderFunc func(ctx context.Context, issuer string) (*Validator, error)

// CacheConfig bounds the issuer cache. All three knobs are externally
// supplied; RefreshAfter must be shorter than ExpireAfter.
type CacheConfig struct {
	MaxEntries   int
	ExpireAfter  time.Duration
	RefreshAfter time.Duration
}

var errBadCacheConfig = errors.New("trust: refresh_after must be shorter than expire_after")

// Cache maps issuer strings to ready validators.
//
// Entry lifecycle: absent -> loading -> valid -> stale-but-served ->
// evicted. A fresh entry is served directly. A stale entry (older than
// RefreshAfter, younger than ExpireAfter) is still served while exactly one
// background reload replaces it. Past ExpireAfter the entry is dropped and
// the next caller pays the synchronous load again. Loader failures are
// never stored.
type Cache struct {
	loader  LoaderFunc
	cfg     CacheConfig
	metrics *metrics.Metrics

	sf singleflight.Group

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	validator  *Validator
	createdAt  time.Time
	refreshing bool
}

// NewCache builds an issuer trust cache. No ambient singleton: callers hold
// the reference, and tests construct one with tiny TTLs.
func NewCache(loader LoaderFunc, cfg CacheConfig, m *metrics.Metrics) (*Cache, error) {
	if cfg.RefreshAfter >= cfg.ExpireAfter {
		return nil, errBadCacheConfig
	}
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	return &Cache{
		loader:  loader,
		cfg:     cfg,
		metrics: m,
		entries: make(map[string]*cacheEntry),
	}, nil
}

// Get returns the validator for an issuer, loading it if needed.
// Concurrent callers for the same absent issuer share a single load; all of
// them observe a load failure and may retry on their next call.
func (c *Cache) Get(ctx context.Context, issuer string) (*Validator, error) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.entries[issuer]
	c.mu.RUnlock()

	if ok {
		age := now.Sub(e.createdAt)
		switch {
		case age < c.cfg.RefreshAfter:
			c.countHit()
			return e.validator, nil
		case age < c.cfg.ExpireAfter:
			// Stale but served: hand back the current value immediately and
			// let one background reload replace it.
			c.countHit()
			c.scheduleRefresh(issuer)
			return e.validator, nil
		default:
			// Hard-expired. Drop it so the load below is synchronous.
			c.mu.Lock()
			if cur, still := c.entries[issuer]; still && cur == e {
				delete(c.entries, issuer)
			}
			c.mu.Unlock()
		}
	}

	v, err, _ := c.sf.Do(issuer, func() (any, error) {
		// A single-flight companion may have stored a fresh entry already.
		c.mu.RLock()
		if e, ok := c.entries[issuer]; ok && time.Since(e.createdAt) < c.cfg.ExpireAfter {
			c.mu.RUnlock()
			return e.validator, nil
		}
		c.mu.RUnlock()

		validator, err := c.loader(context.WithoutCancel(ctx), issuer)
		if err != nil {
			c.countLoad("error")
			return nil, err
		}
		c.store(issuer, validator)
		c.countLoad("ok")
		return validator, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Validator), nil
}

// scheduleRefresh starts one background reload for a stale entry. A second
// caller observing the same stale entry is a no-op.
func (c *Cache) scheduleRefresh(issuer string) {
	c.mu.Lock()
	e, ok := c.entries[issuer]
	if !ok || e.refreshing {
		c.mu.Unlock()
		return
	}
	e.refreshing = true
	c.mu.Unlock()

	go func() {
		validator, err := c.loader(context.Background(), issuer)
		if err != nil {
			// Keep serving the stale value until hard expiry.
			c.countRefresh("error")
			logger.L().Warn("issuer validator refresh failed",
				logger.Component("trust.cache"),
				logger.Issuer(issuer),
				logger.Err(err),
			)
			c.mu.Lock()
			if cur, ok := c.entries[issuer]; ok {
				cur.refreshing = false
			}
			c.mu.Unlock()
			return
		}
		c.store(issuer, validator)
		c.countRefresh("ok")
	}()
}

// store inserts a freshly built entry and enforces the size bound.
func (c *Cache) store(issuer string, v *Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[issuer] = &cacheEntry{validator: v, createdAt: time.Now()}

	for len(c.entries) > c.cfg.MaxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if k == issuer {
				continue
			}
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey = k
				oldest = e.createdAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
		if c.metrics != nil {
			c.metrics.IssuerCacheEvictions.Inc()
		}
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) countHit() {
	if c.metrics != nil {
		c.metrics.IssuerCacheHits.Inc()
	}
}

func (c *Cache) countLoad(result string) {
	if c.metrics != nil {
		c.metrics.IssuerCacheLoads.WithLabelValues(result).Inc()
	}
}

func (c *Cache) countRefresh(result string) {
	if c.metrics != nil {
		c.metrics.IssuerCacheRefreshes.WithLabelValues(result).Inc()
	}
}
