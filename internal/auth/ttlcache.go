package auth

import (
	"container/list"
	"sync"
	"time"

	"github.com/dangthobach/data-extraction/internal/entity"
)

// localCache is the bounded in-process credential tier: fixed TTL, LRU
// eviction when full, injected clock. Constructed once per process and passed
// by handle.
type localCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type localEntry struct {
	key       string
	value     entity.Credential
	expiresAt time.Time
}

func newLocalCache(maxSize int, ttl time.Duration, now func() time.Time) *localCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &localCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *localCache) Get(key string) (entity.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return entity.Credential{}, false
	}
	ent := el.Value.(*localEntry)
	if c.now().After(ent.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return entity.Credential{}, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

func (c *localCache) Put(key string, value entity.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*localEntry)
		ent.value = value
		ent.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*localEntry).key)
		}
	}

	el := c.order.PushFront(&localEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[key] = el
}

func (c *localCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *localCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
