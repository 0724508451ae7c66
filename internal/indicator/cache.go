package indicator

import (
	"container/list"
	"sync"
	"time"
)

// CacheKey identifies one memoized calculation (spec §5's optional
// indicator cache: keyed by calc type, symbol, interval, params, and a
// data fingerprint so stale inputs never hit a stale entry).
type CacheKey struct {
	CalcType    string
	Symbol      string
	Interval    string
	Params      string // caller-serialized parameter set
	Fingerprint string // caller-supplied hash of the input bar window
}

type cacheEntry struct {
	key       CacheKey
	value     any
	expiresAt time.Time
}

// Cache is an LRU with TTL eviction, grounded on the calibration
// harness's cache idiom in the teacher (internal/score/calibration).
// Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	ll         *list.List
	index      map[CacheKey]*list.Element
}

// NewCache creates a Cache with the given TTL and max entry count. The
// spec defaults are ttl=300s, maxEntries=2000.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		ll:         list.New(),
		index:      make(map[CacheKey]*list.Element),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.index, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// Set stores value for key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Set(key CacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	entry := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.index[key] = el
	if c.ll.Len() > c.maxEntries {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.index, back.Value.(*cacheEntry).key)
		}
	}
}

// InvalidatePrefix evicts every entry whose (Symbol, Interval) matches;
// called when new bars arrive for that (symbol, interval) (spec §5).
func (c *Cache) InvalidatePrefix(symbol, interval string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.index {
		if key.Symbol == symbol && key.Interval == interval {
			c.ll.Remove(el)
			delete(c.index, key)
		}
	}
}
