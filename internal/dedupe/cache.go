// Package dedupe remembers recently forwarded item events so redelivered or repeated
// events are skipped.
package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/models"
)

// Key fingerprints an item by id and content, so an edited item is forwarded again.
func Key(item models.CurationItem) string {
	h := sha256.New()
	h.Write([]byte(item.ID))
	h.Write([]byte{0})
	h.Write([]byte(item.Content))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	key string
	at  time.Time
}

// Cache is a bounded set of keys that expire after ttl. The oldest key is evicted first when
// the capacity is exceeded.
type Cache struct {
	mu       sync.Mutex
	index    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		index:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Claim marks key as seen and reports whether it was unseen. Only the first of several
// concurrent claims for the same key succeeds.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expire(now)
	if _, ok := c.index[key]; ok {
		return false
	}
	c.index[key] = c.order.PushBack(entry{key: key, at: now})
	for c.order.Len() > c.capacity {
		c.remove(c.order.Front())
	}
	return true
}

// Seen reports whether key was claimed within the ttl.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	_, ok := c.index[key]
	return ok
}

// Forget releases a claim, used when processing failed and the event should be retried.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.remove(el)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	return c.order.Len()
}

func (c *Cache) expire(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for el := c.order.Front(); el != nil && el.Value.(entry).at.Before(cutoff); el = c.order.Front() {
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	delete(c.index, el.Value.(entry).key)
	c.order.Remove(el)
}
