// Package cache provides the fingerprint-keyed result cache with in-flight
// run coalescing. Concurrent identical requests share one computation, and
// finalized results stay valid for a TTL. The cache is constructed
// explicitly at startup and injected wherever it is needed; there is no
// package-level instance.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes expensive computations by string key. V is the result
// type. The zero value is not usable; use New.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	// valid rejects malformed entries on read. A rejected entry is evicted
	// and recomputed rather than served; corruption is fatal to the entry,
	// never to the service.
	valid func(V) bool
}

// New creates a cache holding up to size entries for at most ttl each.
// valid may be nil, in which case every stored entry is trusted.
func New[V any](size int, ttl time.Duration, valid func(V) bool) *Cache[V] {
	return &Cache[V]{
		lru:   expirable.NewLRU[string, V](size, nil, ttl),
		valid: valid,
	}
}

// Do returns the cached value for key, or runs fn to compute it. While a
// computation for key is in flight, additional callers attach to it rather
// than starting their own, so at most one run per key is ever active.
//
// With refresh set, any cached value is dropped and the in-flight
// computation (if any) is detached from, forcing a fresh run. Late callers
// without refresh coalesce onto the fresh run.
func (c *Cache[V]) Do(key string, refresh bool, fn func() (V, error)) (V, error) {
	if refresh {
		c.lru.Remove(key)
		c.group.Forget(key)
	} else if v, ok := c.lru.Get(key); ok {
		if c.valid == nil || c.valid(v) {
			return v, nil
		}
		c.lru.Remove(key)
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a previous caller may have populated
		// the entry between our miss and the flight starting.
		if !refresh {
			if v, ok := c.lru.Get(key); ok && (c.valid == nil || c.valid(v)) {
				return v, nil
			}
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Get returns the cached value for key without computing anything.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok && c.valid != nil && !c.valid(v) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return v, ok
}

// Invalidate drops the entry for key.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
	c.group.Forget(key)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int { return c.lru.Len() }

// Flush empties the cache. Teardown hook; also useful between tests.
func (c *Cache[V]) Flush() { c.lru.Purge() }
