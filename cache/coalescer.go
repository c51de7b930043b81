// Package cache provides a TTL + LRU result cache that collapses concurrent
// requests for the same key into a single upstream call.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mabletask/insights/metrics"
)

const (
	DefaultCapacity = 128
	DefaultTTL      = 5 * time.Minute
	DefaultTimeout  = 30 * time.Second
)

// Factory produces the value for a key. It receives a context that is not
// cancelled by the caller that triggered it, bounded by Config.Timeout.
type Factory[V any] func(ctx context.Context) (V, error)

// Config controls a Coalescer. Zero values fall back to the defaults above.
type Config struct {
	Name     string
	Capacity int
	TTL      time.Duration
	Timeout  time.Duration

	// Now is the clock used for expiry; tests replace it.
	Now func() time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Coalesced int64 `json:"coalesced"`
	Executed  int64 `json:"executed"`
	Evictions int64 `json:"evictions"`
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Coalescer is safe for concurrent use. The LRU list and entry map are guarded
// by mu; in-flight registration is owned by the singleflight group.
type Coalescer[V any] struct {
	cfg       Config
	cacheable func(V) bool

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	flight  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
	executed  atomic.Int64
	evictions atomic.Int64
}

// New builds a Coalescer. cacheable decides which settled values may be stored;
// a nil cacheable stores every successful value.
func New[V any](cfg Config, cacheable func(V) bool) *Coalescer[V] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cacheable == nil {
		cacheable = func(V) bool { return true }
	}
	return &Coalescer[V]{
		cfg:       cfg,
		cacheable: cacheable,
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// Resolve returns the fresh cached value for key, joins an in-flight call for
// key, or runs factory once and shares its settlement with every concurrent
// caller. Errors and values rejected by cacheable are never stored, so the next
// caller retries.
//
// A caller whose ctx ends while waiting gets ctx.Err(); the factory keeps
// running and its result still lands in the cache.
func (c *Coalescer[V]) Resolve(ctx context.Context, key string, factory Factory[V]) (V, error) {
	if v, ok := c.get(key); ok {
		c.hits.Add(1)
		metrics.CacheLookups.WithLabelValues(c.cfg.Name, "hit").Inc()
		return v, nil
	}

	var ran bool
	ch := c.flight.DoChan(key, func() (any, error) {
		ran = true
		// A call for key may have settled between our miss and this registration.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		c.executed.Add(1)
		return c.run(ctx, key, factory)
	})

	var zero V
	select {
	case res := <-ch:
		outcome := "miss"
		if !ran {
			outcome = "coalesced"
			c.coalesced.Add(1)
		} else {
			c.misses.Add(1)
		}
		metrics.CacheLookups.WithLabelValues(c.cfg.Name, outcome).Inc()

		v, _ := res.Val.(V)
		if res.Err != nil {
			return v, res.Err
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Coalescer[V]) run(ctx context.Context, key string, factory Factory[V]) (v V, err error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("cache factory panicked", "cache", c.cfg.Name, "key", key, "panic", r)
			err = fmt.Errorf("cache %s: factory for %q panicked: %v", c.cfg.Name, key, r)
		}
	}()

	v, err = factory(fctx)
	if err == nil && c.cacheable(v) {
		c.set(key, v)
	}
	return v, err
}

// Invalidate drops key from the cache. An in-flight call is not affected.
func (c *Coalescer[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Purge drops every cached entry.
func (c *Coalescer[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of stored entries, expired ones included until touched.
func (c *Coalescer[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Coalescer[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
		Executed:  c.executed.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Coalescer[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if !c.cfg.Now().Before(ent.expiresAt) {
		c.removeLocked(el)
		c.evictions.Add(1)
		metrics.CacheEvictions.WithLabelValues(c.cfg.Name, "ttl").Inc()
		return zero, false
	}
	c.lru.MoveToFront(el)
	return ent.value, true
}

func (c *Coalescer[V]) set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.cfg.Now().Add(c.cfg.TTL)
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = v
		ent.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	c.entries[key] = c.lru.PushFront(&entry[V]{key: key, value: v, expiresAt: expiresAt})
	for c.lru.Len() > c.cfg.Capacity {
		c.removeLocked(c.lru.Back())
		c.evictions.Add(1)
		metrics.CacheEvictions.WithLabelValues(c.cfg.Name, "capacity").Inc()
	}
}

// removeLocked unlinks el. Caller holds mu.
func (c *Coalescer[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	c.lru.Remove(el)
	delete(c.entries, ent.key)
}
