// Package cache provides the in-process result cache: LRU bounded by entry
// count, with per-entry TTLs and lazy expiry.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Namespace partitions cache keys by what they hold. Each namespace has its
// own TTL.
type Namespace string

const (
	NamespaceEmbedding      Namespace = "embedding"
	NamespaceSearch         Namespace = "search"
	NamespaceModels         Namespace = "models"
	NamespaceProviderStatus Namespace = "provider_status"
)

// TTLConfig holds the per-namespace lifetimes.
type TTLConfig struct {
	Embedding      time.Duration `mapstructure:"embedding"`
	Search         time.Duration `mapstructure:"search"`
	Models         time.Duration `mapstructure:"models"`
	ProviderStatus time.Duration `mapstructure:"provider_status"`
}

// DefaultTTLConfig returns the stock lifetimes: embeddings are stable (1h),
// search results go stale with writes (5m), model lists rarely change (24h),
// provider status must react quickly (30s).
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Embedding:      time.Hour,
		Search:         5 * time.Minute,
		Models:         24 * time.Hour,
		ProviderStatus: 30 * time.Second,
	}
}

// For returns the TTL for a namespace.
func (c TTLConfig) For(ns Namespace) time.Duration {
	switch ns {
	case NamespaceEmbedding:
		return c.Embedding
	case NamespaceSearch:
		return c.Search
	case NamespaceModels:
		return c.Models
	case NamespaceProviderStatus:
		return c.ProviderStatus
	}
	return 0
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a fixed-capacity LRU with per-entry TTLs. Expired entries are
// removed lazily on Get; nothing runs in the background, so a Cache needs
// no Close.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> element holding *entry
	order   *list.List               // front = most recently used
	onEvict func(namespace, reason string)

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
}

const defaultMaxSize = 1000

// New creates a cache holding at most maxSize entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the value for key. An entry past its TTL is removed and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	ent := elem.Value.(*entry)
	if ent.expired(time.Now()) {
		c.removeElement(elem)
		c.notifyEvict(ent.key, "expired")
		c.expired.Add(1)
		c.misses.Add(1)
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return ent.value, true
}

// Set stores value under key for ttl. A non-positive ttl means the entry
// never expires on its own. When the cache is full the least recently used
// entry makes room.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		c.sets.Add(1)
		return
	}

	if len(c.items) >= c.maxSize {
		if back := c.order.Back(); back != nil {
			evicted := back.Value.(*entry).key
			c.removeElement(back)
			c.notifyEvict(evicted, "lru")
			c.evictions.Add(1)
		}
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem
	c.sets.Add(1)
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Flush removes every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	entries := len(c.items)
	c.mu.Unlock()

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
		Entries:   entries,
		MaxSize:   c.maxSize,
		HitRate:   hitRate,
	}
}

// OnEvict installs a hook observing removals the cache decides on its own:
// reason "lru" for capacity evictions, "expired" for lazy TTL expiry. The
// hook runs with the cache lock held and must not call back into the cache.
func (c *Cache) OnEvict(fn func(namespace, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// caller holds c.mu
func (c *Cache) notifyEvict(key, reason string) {
	if c.onEvict == nil {
		return
	}
	ns := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		ns = key[:i]
	}
	c.onEvict(ns, reason)
}

// caller holds c.mu
func (c *Cache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
