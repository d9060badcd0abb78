package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	store := newMemoryStore(5)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("key-%d", i)
		store.set(key, []byte("v"), time.Hour, base.Add(time.Duration(i)*time.Second))
	}

	assert.LessOrEqual(t, store.size(), 5)

	now := base.Add(time.Minute)
	for i := 0; i < 3; i++ {
		_, ok := store.get(fmt.Sprintf("key-%d", i), now)
		assert.False(t, ok, "oldest entries must be evicted first")
	}
	for i := 3; i < 8; i++ {
		_, ok := store.get(fmt.Sprintf("key-%d", i), now)
		assert.True(t, ok, "newest entries must survive eviction")
	}
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	store := newMemoryStore(100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.set("short", []byte("v"), time.Minute, base)
	store.set("long", []byte("v"), time.Hour, base)

	store.sweep(base.Add(2 * time.Minute))

	assert.Equal(t, 1, store.size())
	_, ok := store.get("long", base.Add(2*time.Minute))
	assert.True(t, ok)
}

func TestMemoryStore_GetPurgesExpiredEntry(t *testing.T) {
	store := newMemoryStore(100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.set("k", []byte("v"), time.Minute, base)

	_, ok := store.get("k", base.Add(2*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 0, store.size())
}
