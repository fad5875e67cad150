package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

const memorySweepInterval = time.Minute

type memoryEntry struct {
	value []byte
	// deadline is zero for entries without a TTL.
	deadline time.Time
}

func (e memoryEntry) liveAt(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// MemoryCache keeps entries in process memory. Nothing survives a restart,
// so it suits tests and single-run deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	sweeper *CleanupScheduler
}

// NewMemoryCache creates a cache whose expired entries are swept every minute.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	c.sweeper = NewCleanupScheduler(c, memorySweepInterval)
	c.sweeper.Start()
	return c
}

func (c *MemoryCache) lookup(key string) (memoryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !e.liveAt(c.now()) {
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return bytes.Clone(e.value), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: bytes.Clone(value)}
	if e.value == nil {
		e.value = []byte{}
	}
	if ttl > 0 {
		e.deadline = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeleteExpired drops every entry past its deadline.
func (c *MemoryCache) DeleteExpired(_ context.Context) (int64, error) {
	now := c.now()
	var n int64

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if !e.liveAt(now) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) Ping(_ context.Context) error {
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.sweeper.Stop()
	return nil
}
