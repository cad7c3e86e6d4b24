// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_cache

import (
	"container/list"
	"strings"
	"sync"
)

// ResponseCache is the process-wide phrase → synthesized-audio cache,
// shared read-mostly across all live sessions. Hits return the stored
// bytes unchanged; entries are evicted least-recently-used once the
// capacity bound is reached.
type ResponseCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key   string
	audio []byte
}

// NormalizeKey canonicalizes a phrase for cache lookup: lower-cased,
// surrounding whitespace trimmed.
func NormalizeKey(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}

// NewResponseCache creates a bounded cache. Capacity below 1 is treated
// as 1 so that the apology fallback always has a slot.
func NewResponseCache(capacity int) *ResponseCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResponseCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the audio stored for the phrase, if any. The returned slice
// must not be mutated by callers; sessions only stream it outbound.
func (c *ResponseCache) Get(phrase string) ([]byte, bool) {
	key := NormalizeKey(phrase)
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	elem, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	// Promote under the write lock; the entry may have been evicted
	// between the two lock acquisitions.
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok = c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).audio, true
}

// Put stores synthesized audio under the normalized phrase, evicting the
// least recently used entry when full. Empty keys and empty audio are
// ignored — caching a failed synthesis would replay silence forever.
func (c *ResponseCache) Put(phrase string, audio []byte) {
	key := NormalizeKey(phrase)
	if key == "" || len(audio) == 0 {
		return
	}

	// Stored bytes are copied so later reuse of the caller's buffer can
	// never corrupt a cache hit.
	stored := make([]byte, len(audio))
	copy(stored, audio)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).audio = stored
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, audio: stored})
}

// Len returns the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
