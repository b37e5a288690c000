// ABOUTME: Thread-safe TTL cache for deduplicating inbound platform events.
// ABOUTME: Size-bounded with O(1) eviction; expired entries are swept lazily on insert.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/coven-connect/internal/message"
)

// Key builds the dedupe key for an inbound message. Platforms redeliver
// the same event with the same message ID, so platform+channel+message is
// the identity that matters.
func Key(m *message.Unified) string {
	return string(m.Platform) + "|" + m.ChannelID + "|" + m.MessageID
}

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently seen keys so redelivered events are dropped
// instead of spawning duplicate executions. Entries expire after the TTL
// and the cache never holds more than maxSize keys; the oldest entry is
// evicted to make room. Expired entries are also swept opportunistically
// on insert, so no background goroutine or Close is needed.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int

	now func() time.Time // injectable for tests
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CheckAndMark atomically checks whether key was already seen and marks
// it if not. Returns true for a duplicate, false for a new key (now
// marked). Atomicity matters: separate check and mark calls would let two
// deliveries of the same event both pass.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	if e, ok := c.seen[key]; ok && now.Sub(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) markLocked(key string, now time.Time) {
	if e, exists := c.seen[key]; exists {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	elem := c.order.PushBack(key)
	c.seen[key] = &entry{seenAt: now, element: elem}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// sweepLocked drops expired entries from the front of the order list.
// Entries are re-stamped on duplicate marks, so expiry order can drift
// from list order; sweeping stops at the first live entry, which keeps
// inserts O(1) amortized while still bounding growth.
func (c *Cache) sweepLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.seen[key]
		if e == nil {
			c.order.Remove(front)
			continue
		}
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}
