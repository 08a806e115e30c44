package badger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/entitycache/kvstore"
	"github.com/iotaledger/entitycache/kvstore/badger"
	"github.com/iotaledger/entitycache/kvstore/kvtest"
)

func TestBadgerDB(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kvstore.KVStore {
		db, err := badger.CreateInMemoryDB()
		require.NoError(t, err)

		store := badger.New(db)
		t.Cleanup(func() { _ = store.Close() })

		return store
	})
}

func TestBadgerDBOnDisk(t *testing.T) {
	db, err := badger.CreateDB(t.TempDir())
	require.NoError(t, err)

	store := badger.New(db)
	require.NoError(t, store.Set([]byte("key"), []byte("value")))
	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())
}
