package cache

import (
	"sort"
	"sync"
	"time"
)

// memoryEntry is one record of the in-process fallback store.
type memoryEntry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// memoryStore is the non-persistent fallback tier. Entries expire after
// their TTL and the store is capped at maxEntries, evicting the oldest
// entries by insertion time once the cap is exceeded.
type memoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
}

func newMemoryStore(maxEntries int) *memoryStore {
	return &memoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

func (m *memoryStore) set(key string, data []byte, ttl time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{data: data, storedAt: now, ttl: ttl}
	if len(m.entries) > m.maxEntries {
		m.evictOldestLocked()
	}
}

// get returns the entry's data if it exists and has not expired. Expired
// entries are removed on read.
func (m *memoryStore) get(key string, now time.Time) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.data, true
}

func (m *memoryStore) has(key string, now time.Time) bool {
	_, ok := m.get(key, now)
	return ok
}

func (m *memoryStore) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryStore) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// sweep removes expired entries and re-applies the size cap.
func (m *memoryStore) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
	if len(m.entries) > m.maxEntries {
		m.evictOldestLocked()
	}
}

// evictOldestLocked drops the oldest entries by insertion time until the
// store is back under the cap. Callers must hold mu.
func (m *memoryStore) evictOldestLocked() {
	type aged struct {
		key      string
		storedAt time.Time
	}

	byAge := make([]aged, 0, len(m.entries))
	for key, entry := range m.entries {
		byAge = append(byAge, aged{key: key, storedAt: entry.storedAt})
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].storedAt.Before(byAge[j].storedAt)
	})

	excess := len(m.entries) - m.maxEntries
	for i := 0; i < excess; i++ {
		delete(m.entries, byAge[i].key)
	}
}
