package pipeline

import (
	"fmt"
	"sync"
	"time"

	"spai-hq/gatekeeper/pkg/policy"
)

// Classifier cache bounds. The key includes the local hour so cached
// opinions track time-of-day drift without unbounded growth.
const (
	cacheTTL        = 10 * time.Minute
	cacheMaxEntries = 500
)

// cacheKey builds the classifier cache key for a page at time t.
func cacheKey(host, path string, t time.Time) string {
	return fmt.Sprintf("%s|%s|%d", host, path, t.Hour())
}

type cacheEntry struct {
	result   *policy.ClassifierResult
	storedAt time.Time
}

// resultCache is a bounded TTL cache with FIFO eviction: on overflow the
// oldest-inserted entry goes, regardless of how recently it was read.
// Overwriting an existing key keeps its original insertion position.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	max     int
	ttl     time.Duration
	now     func() time.Time

	onEvict func()
}

func newResultCache(max int, ttl time.Duration, now func() time.Time) *resultCache {
	if now == nil {
		now = time.Now
	}
	return &resultCache{
		entries: make(map[string]cacheEntry),
		max:     max,
		ttl:     ttl,
		now:     now,
	}
}

// get returns the cached result for key if present and within TTL. Stale
// entries are left in place; a subsequent put refreshes them.
func (c *resultCache) get(key string) (*policy.ClassifierResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	return entry.result, true
}

// put stores a result, evicting the oldest-inserted entry on overflow.
func (c *resultCache) put(key string, result *policy.ClassifierResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}

	if len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		if c.onEvict != nil {
			c.onEvict()
		}
	}
}

// len returns the current entry count.
func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
