// Package cache provides the read-through cache used in front of the review
// store. Entries expire after a TTL and are also evicted explicitly, per
// scope, right after a write.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const sep = "\x1f"

// Cache is a read-through cache keyed by (scope, key). A scope groups the
// entries that a single write invalidates, such as everything for one user.
// Values are shared between callers and must not be modified.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

// New returns a cache holding at most size entries, each for at most ttl.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
		gens: make(map[string]uint64),
	}
}

// Get returns the cached value for (scope, key), calling load on a miss.
// Concurrent misses for the same entry share one load, which runs without
// the cancellation of the caller that started it. A caller whose ctx ends
// stops waiting and gets ctx.Err(). A load that was started before an
// Invalidate of its scope is returned to its callers but not stored.
func (c *Cache[V]) Get(ctx context.Context, scope, key string, load func(context.Context) (V, error)) (V, error) {
	var zero V
	full := scope + sep + key
	if v, ok := c.lru.Get(full); ok {
		return v, nil
	}

	gen := c.generation(scope)
	flightKey := full + sep + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gens[scope] == gen {
			c.lru.Add(full, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate evicts every entry of scope.
func (c *Cache[V]) Invalidate(scope string) {
	prefix := scope + sep
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[scope]++
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

func (c *Cache[V]) generation(scope string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[scope]
}
