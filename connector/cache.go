package connector

import (
	"sync"
	"time"
)

// cacheEntry holds one service_name's discovered instances plus its
// own round-robin cursor, independent of any cursor the hub itself
// keeps (§5: "per-name round-robin independent of server-side cursor").
type cacheEntry struct {
	records   []ServiceRecord
	expiresAt time.Time
	cursor    uint64
}

// cache is a TTL-based, per-service-name discovery cache. Modeled on
// the teacher's runtime/registry.MemoryCache, trimmed to this library's
// single-key-shape (no background refresh loop: the connector re-polls
// synchronously on cache miss instead, since discovery calls are cheap
// and infrequent compared to the toolset-schema fetches the teacher was
// caching).
type cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	ttl         time.Duration
	lastRefresh time.Time
}

func newCache(ttl time.Duration) *cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &cache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (c *cache) get(name string) ([]ServiceRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, name)
		return nil, false
	}
	return e.records, true
}

func (c *cache) set(name string, records []ServiceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.entries[name]
	cursor := uint64(0)
	if ok {
		cursor = existing.cursor
	}
	now := time.Now()
	c.entries[name] = &cacheEntry{records: records, expiresAt: now.Add(c.ttl), cursor: cursor}
	c.lastRefresh = now
}

// next returns one record for name using the cache's own round-robin
// cursor, and advances it. Caller must have already confirmed the
// entry exists and is non-empty.
func (c *cache) next(name string) (ServiceRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok || len(e.records) == 0 {
		return ServiceRecord{}, false
	}
	idx := e.cursor % uint64(len(e.records))
	e.cursor++
	return e.records[idx], true
}

// Clear removes every cached entry.
func (c *cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Info reports how many service names are cached, for diagnostics.
func (c *cache) Info() (entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Populated reports whether the cache holds any service name's
// discovery result, and the time of the most recent refresh (§4.7
// "cache_info() -> (populated?, last_refresh)"). lastRefresh is the
// zero time when nothing has ever been cached.
func (c *cache) Populated() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) > 0, c.lastRefresh
}
