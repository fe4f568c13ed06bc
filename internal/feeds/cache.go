// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package feeds

import (
	"sync"
	"time"

	"github.com/pdiddy/expression-learner/pkg/types"
)

// CacheStats reports the size of the feed cache.
type CacheStats struct {
	TotalEntries   int `json:"total_entries" yaml:"total_entries"`
	ExpiredEntries int `json:"expired_entries" yaml:"expired_entries"`
}

type cacheEntry struct {
	topics    []types.Topic
	summaries map[string]string // article URL → summary text
	stored    time.Time
}

// cache holds parsed feeds keyed by feed URL for a fixed TTL.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*cacheEntry
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *cache) expired(e *cacheEntry) bool {
	return c.now().Sub(e.stored) > c.ttl
}

// get returns the cached topics for key. Expired entries are removed.
func (c *cache) get(key string) ([]types.Topic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return e.topics, true
}

func (c *cache) set(key string, topics []types.Topic, summaries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{topics: topics, summaries: summaries, stored: c.now()}
}

// summary looks up an article URL across all unexpired feeds.
func (c *cache) summary(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if c.expired(e) {
			continue
		}
		if s, ok := e.summaries[url]; ok {
			return s, true
		}
	}
	return "", false
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func (c *cache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		if c.expired(e) {
			stats.ExpiredEntries++
		}
	}
	return stats
}
