// Package memo provides TTL-based memoization for handlers that call the
// remote data provider. Entries expire lazily: nothing sweeps the store,
// an entry observed past its expiry is simply treated as absent.
package memo

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/dabrowne/ledgerfs/internal/route"
)

type entry[V any] struct {
	value  V
	expiry time.Time
}

// Cache is a generic TTL memoization store. Hits are lock-free reads;
// misses serialize their compute under a mutex so concurrent callers never
// duplicate an upstream call for the same cache. Entry count is unbounded,
// which is acceptable because the key space is bounded by the distinct
// arguments actually requested.
type Cache[V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex // serializes compute on miss
	entries *xsync.Map[string, entry[V]]
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: xsync.NewMap[string, entry[V]](),
	}
}

// Get returns the live value stored under key. An expired entry is
// discarded and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.entries.Load(key)
	if ok && c.now().Before(e.expiry) {
		return e.value, true
	}
	if ok {
		c.entries.Delete(key)
	}
	var zero V
	return zero, false
}

// Put stores value under key with the cache's TTL from now.
func (c *Cache[V]) Put(key string, value V) {
	c.entries.Store(key, entry[V]{value: value, expiry: c.now().Add(c.ttl)})
}

// Do returns the cached value for key, or invokes fn once, stores its
// result and returns it. Errors are never cached.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Put(key, v)
	return v, nil
}

// Key builds a canonical, order-preserving encoding of an argument vector.
// Every part is length-prefixed, so identical vectors always produce the
// identical key and distinct vectors can never collide.
func Key(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
		b.WriteByte(';')
	}
	return b.String()
}

// Wrap memoizes a route handler on its positional arguments. A zero TTL
// disables reuse entirely: every call re-invokes the handler.
func Wrap(h route.Handler, ttl time.Duration) route.Handler {
	c := New[any](ttl)
	return route.Wrapped(h, func(args []string) (any, error) {
		return c.Do(Key(args...), func() (any, error) {
			return h.Invoke(args)
		})
	})
}
