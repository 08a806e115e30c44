// Package kvtest contains a test suite every kvstore.KVStore implementation has to pass.
package kvtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotaledger/entitycache/kvstore"
)

// Factory creates a new empty store for a test.
type Factory func(t *testing.T) kvstore.KVStore

// Run executes the suite against the stores created by the factory.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetSetDelete", func(t *testing.T) { testGetSetDelete(t, newStore(t)) })
	t.Run("Realms", func(t *testing.T) { testRealms(t, newStore(t)) })
	t.Run("Iterate", func(t *testing.T) { testIterate(t, newStore(t)) })
	t.Run("DeletePrefix", func(t *testing.T) { testDeletePrefix(t, newStore(t)) })
	t.Run("Batched", func(t *testing.T) { testBatched(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func testGetSetDelete(t *testing.T, store kvstore.KVStore) {
	_, err := store.Get([]byte("missing"))
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)

	require.NoError(t, store.Set([]byte("key"), []byte("value")))
	value, err := store.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	has, err := store.Has([]byte("key"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.Set([]byte("key"), []byte("changed")))
	value, err = store.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), value)

	require.NoError(t, store.Delete([]byte("key")))
	has, err = store.Has([]byte("key"))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Flush())
}

func testRealms(t *testing.T, store kvstore.KVStore) {
	players, err := store.WithRealm([]byte("player/"))
	require.NoError(t, err)
	items, err := store.WithRealm([]byte("item/"))
	require.NoError(t, err)
	assert.Equal(t, []byte("player/"), players.Realm())

	require.NoError(t, players.Set([]byte("1"), []byte("alice")))
	require.NoError(t, items.Set([]byte("1"), []byte("sword")))

	value, err := players.Get([]byte("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), value)

	value, err = items.Get([]byte("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sword"), value)

	// the root store sees the realm as part of the key
	value, err = store.Get([]byte("player/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), value)

	require.NoError(t, players.Clear())
	has, err := items.Has([]byte("1"))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = players.Has([]byte("1"))
	require.NoError(t, err)
	assert.False(t, has)
}

func testIterate(t *testing.T, store kvstore.KVStore) {
	realm, err := store.WithRealm([]byte("r/"))
	require.NoError(t, err)
	require.NoError(t, store.Set([]byte("other"), []byte("x")))

	for _, key := range []string{"b1", "a2", "a1", "a3"} {
		require.NoError(t, realm.Set([]byte(key), []byte("v"+key)))
	}

	var keys []string
	require.NoError(t, realm.Iterate([]byte("a"), func(key kvstore.Key, value kvstore.Value) bool {
		keys = append(keys, string(key))
		assert.Equal(t, "v"+string(key), string(value))

		return true
	}))
	assert.Equal(t, []string{"a1", "a2", "a3"}, keys)

	keys = nil
	require.NoError(t, realm.IterateKeys(kvstore.EmptyPrefix, func(key kvstore.Key) bool {
		keys = append(keys, string(key))

		return true
	}, kvstore.IterDirectionBackward))
	assert.Equal(t, []string{"b1", "a3", "a2", "a1"}, keys)

	keys = nil
	require.NoError(t, realm.IterateKeys([]byte("a"), func(key kvstore.Key) bool {
		keys = append(keys, string(key))

		return len(keys) < 2
	}))
	assert.Equal(t, []string{"a1", "a2"}, keys)
}

func testDeletePrefix(t *testing.T, store kvstore.KVStore) {
	for _, key := range []string{"a1", "a2", "b1"} {
		require.NoError(t, store.Set([]byte(key), []byte(key)))
	}

	require.NoError(t, store.DeletePrefix([]byte("a")))

	count := 0
	require.NoError(t, store.IterateKeys(kvstore.EmptyPrefix, func(key kvstore.Key) bool {
		assert.Equal(t, "b1", string(key))
		count++

		return true
	}))
	assert.Equal(t, 1, count)
}

func testBatched(t *testing.T, store kvstore.KVStore) {
	realm, err := store.WithRealm([]byte("batch/"))
	require.NoError(t, err)
	require.NoError(t, realm.Set([]byte("old"), []byte("old")))

	batch, err := realm.Batched()
	require.NoError(t, err)
	require.NoError(t, batch.Set([]byte("1"), []byte("one")))
	require.NoError(t, batch.Set([]byte("2"), []byte("two")))
	require.NoError(t, batch.Delete([]byte("2")))
	require.NoError(t, batch.Delete([]byte("old")))

	// nothing is visible before the commit
	has, err := realm.Has([]byte("1"))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, batch.Commit())

	value, err := realm.Get([]byte("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)
	for _, key := range []string{"2", "old"} {
		has, err = realm.Has([]byte(key))
		require.NoError(t, err)
		assert.False(t, has, key)
	}

	cancelled, err := realm.Batched()
	require.NoError(t, err)
	require.NoError(t, cancelled.Set([]byte("3"), []byte("three")))
	cancelled.Cancel()
	require.NoError(t, cancelled.Commit())
	has, err = realm.Has([]byte("3"))
	require.NoError(t, err)
	assert.False(t, has)
}

func testClosed(t *testing.T, store kvstore.KVStore) {
	batch, err := store.Batched()
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Set([]byte("key"), []byte("value")), kvstore.ErrStoreClosed)
	_, err = store.Get([]byte("key"))
	assert.ErrorIs(t, err, kvstore.ErrStoreClosed)
	_, err = store.WithRealm([]byte("realm"))
	assert.ErrorIs(t, err, kvstore.ErrStoreClosed)
	assert.ErrorIs(t, batch.Commit(), kvstore.ErrStoreClosed)
}
