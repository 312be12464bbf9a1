// Package cache provides the session cache used in front of session storage.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lborres/whisper/core"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxSize = 500
)

var _ core.CacheWithStats = (*LRUCache)(nil)

// LRUCache keeps recently resolved sessions keyed by token hash.
// Entries drop out after TTL or when the least recently used one is evicted.
type LRUCache struct {
	lru *expirable.LRU[string, *core.Session]
	ttl time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

func NewLRUCache(c core.CacheConfig) *LRUCache {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}

	return &LRUCache{
		lru: expirable.NewLRU[string, *core.Session](c.MaxSize, nil, c.TTL),
		ttl: c.TTL,
	}
}

func (c *LRUCache) Get(tokenHash string) (*core.Session, error) {
	session, ok := c.lru.Get(tokenHash)
	if !ok {
		c.misses.Add(1)
		return nil, core.ErrCacheNotFound
	}
	c.hits.Add(1)
	return session, nil
}

func (c *LRUCache) Set(tokenHash string, session *core.Session) error {
	if evicted := c.lru.Add(tokenHash, session); evicted {
		c.evictions.Add(1)
	}
	c.sets.Add(1)
	return nil
}

func (c *LRUCache) Delete(tokenHash string) error {
	if c.lru.Remove(tokenHash) {
		c.deletes.Add(1)
	}
	return nil
}

func (c *LRUCache) Clear() error {
	c.lru.Purge()
	return nil
}

func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func (c *LRUCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
