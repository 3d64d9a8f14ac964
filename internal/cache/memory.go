package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process, per-pool LRU cache with per-entry TTL.
// Each pool gets its own eviction list and byte-size budget so a burst
// of large record lists cannot starve the pods pool of capacity.
type MemoryCache struct {
	mu        sync.Mutex
	pools     map[string]*memoryPool
	maxBytes  int64
	defaultTTL time.Duration
}

type memoryPool struct {
	entries   map[string]*list.Element
	order     *list.List // front = most recently used
	usedBytes int64
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache returns a cache where each pool may hold up to
// maxBytesPerPool bytes of value data; entries without an explicit TTL
// fall back to defaultTTL.
func NewMemoryCache(maxBytesPerPool int64, defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		pools:      make(map[string]*memoryPool),
		maxBytes:   maxBytesPerPool,
		defaultTTL: defaultTTL,
	}
}

func (c *MemoryCache) pool(name string) *memoryPool {
	p, ok := c.pools[name]
	if !ok {
		p = &memoryPool{entries: make(map[string]*list.Element), order: list.New()}
		c.pools[name] = p
	}
	return p
}

func (c *MemoryCache) Get(_ context.Context, pool, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pool(pool)
	el, ok := p.entries[key]
	if !ok {
		return nil, false, nil
	}
	ent := el.Value.(*memoryEntry)
	if time.Now().After(ent.expiresAt) {
		p.remove(el)
		return nil, false, nil
	}
	p.order.MoveToFront(el)
	return ent.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, pool, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pool(pool)
	if el, ok := p.entries[key]; ok {
		p.remove(el)
	}

	ent := &memoryEntry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	el := p.order.PushFront(ent)
	p.entries[key] = el
	p.usedBytes += int64(len(value))

	for p.usedBytes > c.maxBytes && p.order.Len() > 0 {
		oldest := p.order.Back()
		p.remove(oldest)
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, pool, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pool(pool)
	if el, ok := p.entries[key]; ok {
		p.remove(el)
	}
	return nil
}

// Clear removes every key in pool matching pattern. A trailing "*"
// is treated as a prefix glob (SPEC_FULL.md §4.10); a pattern without
// one must match exactly.
func (c *MemoryCache) Clear(_ context.Context, pool, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pool(pool)
	prefix, isGlob := strings.CutSuffix(pattern, "*")

	var toRemove []*list.Element
	for key, el := range p.entries {
		if isGlob {
			if strings.HasPrefix(key, prefix) {
				toRemove = append(toRemove, el)
			}
		} else if key == pattern {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		p.remove(el)
	}
	return nil
}

func (c *MemoryCache) Close() error { return nil }

func (p *memoryPool) remove(el *list.Element) {
	ent := el.Value.(*memoryEntry)
	delete(p.entries, ent.key)
	p.order.Remove(el)
	p.usedBytes -= int64(len(ent.value))
}

var _ Cache = (*MemoryCache)(nil)
