package services

import (
	"container/list"
	"sync"
	"time"
)

type dedupeEntry struct {
	seenAt  time.Time
	element *list.Element
}

// DedupeCache remembers recently seen inbound message IDs so transport
// redeliveries (Twilio webhook retries, Matrix sync replays) are processed
// once. Entries expire after ttl; the oldest entry is evicted at capacity.
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]*dedupeEntry
	order   *list.List // Oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewDedupeCache creates a cache and starts its cleanup goroutine.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &DedupeCache{
		seen:    make(map[string]*dedupeEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndMark reports whether key was already seen within the TTL, and marks
// it seen if not.
func (c *DedupeCache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok {
		if now.Sub(entry.seenAt) < c.ttl {
			return true
		}
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &dedupeEntry{seenAt: now, element: c.order.PushBack(key)}
	return false
}

// Len returns the number of remembered keys.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *DedupeCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *DedupeCache) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.seenAt) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *DedupeCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
