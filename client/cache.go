package client

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// cacheEntry is one cached GET response. Entries past expiresAt are
// stale: not served on the fast path, but kept for recovery fallback
// until overwritten or invalidated.
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// responseCache caches successful GET bodies keyed by path and query.
type responseCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// cacheKey builds a stable key from path and query.
func cacheKey(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(query[k])
	}
	return b.String()
}

// get returns a cached body. With allowStale, expired entries qualify.
func (c *responseCache) get(key string, allowStale bool) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !allowStale && c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// set stores a body with the configured TTL.
func (c *responseCache) set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
}

// invalidatePrefix drops every entry whose path starts with prefix.
// Called after a successful mutation so stale reads don't survive it.
func (c *responseCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// clear drops everything.
func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// size returns the number of entries, stale included.
func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
