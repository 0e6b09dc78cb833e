package state

import (
	"container/list"

	"github.com/google/uuid"
)

// tradeLRU tracks recently seen trade IDs for idempotent recording.
// Capacity exceeds the history cap so a trade evicted from the bounded
// history is still recognized as a duplicate for a while.
// Not thread-safe — only accessed under the store's write lock.
type tradeLRU struct {
	capacity int
	cache    map[uuid.UUID]*list.Element
	lruList  *list.List

	evictions int64 // For metrics
}

func newTradeLRU(capacity int) *tradeLRU {
	return &tradeLRU{
		capacity: capacity,
		cache:    make(map[uuid.UUID]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if the ID was seen (promotes to front)
func (lru *tradeLRU) Contains(id uuid.UUID) bool {
	elem, exists := lru.cache[id]
	if exists {
		// Move to front (most recently used)
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts an ID (or promotes if it exists)
func (lru *tradeLRU) Add(id uuid.UUID) {
	if elem, exists := lru.cache[id]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(id)
	lru.cache[id] = elem

	// Evict if over capacity
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *tradeLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		delete(lru.cache, elem.Value.(uuid.UUID))
		lru.evictions++
	}
}

// Reset clears all entries and reloads from the given IDs.
func (lru *tradeLRU) Reset(ids []uuid.UUID) {
	lru.cache = make(map[uuid.UUID]*list.Element, lru.capacity)
	lru.lruList = list.New()
	for _, id := range ids {
		lru.Add(id)
	}
}

// Size returns current number of entries
func (lru *tradeLRU) Size() int {
	return lru.lruList.Len()
}
