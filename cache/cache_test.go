package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotaledger/entitycache/cache"
	"github.com/iotaledger/entitycache/persist"
)

type player struct {
	Name string
}

func newObject(key string) persist.Object {
	return persist.NewPersistedCacheObject("player", key, &player{Name: key})
}

func newPinnedObject(key string) *persist.CacheObject[*player] {
	object := persist.NewPersistedCacheObject("player", key, &player{Name: key})
	object.Pin()

	return object
}

func testStore(t *testing.T, store cache.Store) {
	_, exists := store.Get("1")
	assert.False(t, exists)

	object := newObject("1")
	store.Put("1", object)
	cached, exists := store.Get("1")
	require.True(t, exists)
	assert.Same(t, object, cached)

	// tombstone
	store.Put("1", nil)
	cached, exists = store.Get("1")
	require.True(t, exists)
	assert.Nil(t, cached)
	assert.Equal(t, 1, store.Len())

	store.Remove("1")
	_, exists = store.Get("1")
	assert.False(t, exists)
	assert.Zero(t, store.Len())
	store.Remove("1")
}

func TestMap(t *testing.T) {
	store := cache.NewMap()
	testStore(t, store)

	first := newObject("1")
	cached, stored := store.PutIfAbsent("1", first)
	assert.True(t, stored)
	assert.Same(t, first, cached)

	cached, stored = store.PutIfAbsent("1", newObject("1"))
	assert.False(t, stored)
	assert.Same(t, first, cached)
	assert.Equal(t, []string{"1"}, store.Keys())
}

func TestMap_ConcurrentPutIfAbsent(t *testing.T) {
	store := cache.NewMap()

	var wg sync.WaitGroup
	results := make([]persist.Object, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			results[i], _ = store.PutIfAbsent("contended", newObject("contended"))
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		assert.Same(t, results[0], result)
	}
}

func TestLRU(t *testing.T) {
	store, err := cache.NewLRU(10, nil)
	require.NoError(t, err)
	testStore(t, store)

	var evicted []string
	bounded, err := cache.NewLRU(2, func(key string, _ persist.Object) {
		evicted = append(evicted, key)
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		bounded.Put(fmt.Sprint(i), newObject(fmt.Sprint(i)))
	}
	assert.Equal(t, []string{"0"}, evicted)
	assert.Equal(t, 2, bounded.Len())

	_, err = cache.NewLRU(0, nil)
	assert.Error(t, err)
}

func TestLRU_ParksUnsettledObjects(t *testing.T) {
	var evicted []string
	store, err := cache.NewLRU(2, func(key string, _ persist.Object) {
		evicted = append(evicted, key)
	})
	require.NoError(t, err)

	pinned := newPinnedObject("0")
	store.Put("0", pinned)
	store.Put("1", newObject("1"))
	store.Put("2", newObject("2"))

	// evicted from the bound, but still reachable
	assert.Empty(t, evicted)
	assert.Equal(t, 1, store.Parked())
	assert.Equal(t, 3, store.Len())
	cached, exists := store.Get("0")
	require.True(t, exists)
	assert.Same(t, pinned, cached)

	// released by the next eviction once settled
	pinned.Unpin()
	store.Put("3", newObject("3"))
	assert.Equal(t, []string{"1", "0"}, evicted)
	assert.Zero(t, store.Parked())
	_, exists = store.Get("0")
	assert.False(t, exists)

	// a Put replaces a parked object without releasing it
	transient := persist.NewCacheObject("player", "4", &player{Name: "4"})
	store.Put("4", transient)
	store.Put("5", newObject("5"))
	store.Put("6", newObject("6"))
	require.Equal(t, 1, store.Parked())
	store.Put("4", nil)
	assert.Zero(t, store.Parked())
	assert.NotContains(t, evicted, "4")

	// Remove releases parked objects
	store.Put("7", newPinnedObject("7"))
	store.Put("8", newObject("8"))
	store.Put("9", newObject("9"))
	require.Equal(t, 1, store.Parked())
	store.Remove("7")
	assert.Zero(t, store.Parked())
	assert.Contains(t, evicted, "7")
}

func TestTTL(t *testing.T) {
	store, err := cache.NewTTL(time.Minute, nil)
	require.NoError(t, err)
	defer store.Close()
	testStore(t, store)

	expired := make(chan string, 1)
	short, err := cache.NewTTL(20*time.Millisecond, func(key string, _ persist.Object) {
		expired <- key
	})
	require.NoError(t, err)
	defer short.Close()

	short.Put("1", newObject("1"))
	select {
	case key := <-expired:
		assert.Equal(t, "1", key)
	case <-time.After(2 * time.Second):
		require.Fail(t, "entry did not expire")
	}

	_, exists := short.Get("1")
	assert.False(t, exists)
}

func TestTTL_KeepsUnsettledObjects(t *testing.T) {
	expired := make(chan string, 1)
	store, err := cache.NewTTL(20*time.Millisecond, func(key string, _ persist.Object) {
		expired <- key
	})
	require.NoError(t, err)
	defer store.Close()

	pinned := newPinnedObject("1")
	store.Put("1", pinned)

	select {
	case key := <-expired:
		require.Failf(t, "unsettled entry expired", "key %s", key)
	case <-time.After(100 * time.Millisecond):
	}

	cached, exists := store.Get("1")
	require.True(t, exists)
	assert.Same(t, pinned, cached)

	pinned.Unpin()
	select {
	case key := <-expired:
		assert.Equal(t, "1", key)
	case <-time.After(2 * time.Second):
		require.Fail(t, "settled entry did not expire")
	}
}
